package codec

import "testing"

func TestFrameLenIsFourByteAligned(t *testing.T) {
	cases := []struct {
		name    string
		params  []byte
		respLen int
	}{
		{"no params no resp", nil, 0},
		{"odd params", []byte{1, 2, 3}, 0},
		{"resp only", nil, 18},
		{"params and resp", make([]byte, 140), 2},
		{"already aligned", make([]byte, 4), 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := NewFrame(OpWriteParm, 3).WithParams(c.params).WithRespLen(c.respLen)
			if f.Len()%4 != 0 {
				t.Fatalf("Len() = %d, not a multiple of 4", f.Len())
			}
			if got := len(f.Build()); got != f.Len() {
				t.Fatalf("Build() length = %d, want %d", got, f.Len())
			}
		})
	}
}

func TestFrameBuildHeader(t *testing.T) {
	f := NewFrame(OpReadID, 7).WithParams([]byte{0xAA, 0xBB})
	tx := f.Build()
	if tx[0] != byte(OpReadID) {
		t.Fatalf("tx[0] = %#x, want opcode %#x", tx[0], byte(OpReadID))
	}
	if tx[1] != 7 {
		t.Fatalf("tx[1] = %d, want chip_id 7", tx[1])
	}
	if tx[2] != 0xAA || tx[3] != 0xBB {
		t.Fatalf("params not copied at headerLen offset: %x", tx[2:4])
	}
}

func TestFrameRespOffsetFollowsParams(t *testing.T) {
	f := NewFrame(OpReadFeature, 1).WithParams([]byte{1, 2, 3})
	if got, want := f.RespOffset(), headerLen+3; got != want {
		t.Fatalf("RespOffset() = %d, want %d", got, want)
	}
	if got := f.ParamOffset(); got != headerLen {
		t.Fatalf("ParamOffset() = %d, want %d", got, headerLen)
	}
}
