package chain

import (
	"testing"

	"github.com/btc08io/btc08d/chip"
	"github.com/btc08io/btc08d/codec"
	"github.com/btc08io/btc08d/config"
	"github.com/btc08io/btc08d/transport"
)

// queueDecoded scripts one FakePort response: f describes the exact
// frame the code under test is expected to send (opcode, chip_id,
// params, reserved response length), and payload sets specific
// decoded payload bytes (offset relative to the response start, i.e.
// after the header+params echo). Bytes not named default to zero once
// decoded. Responses are stored bit-inverted, matching the wire
// convention exec() undoes on receipt.
func queueDecoded(port *transport.FakePort, f *codec.Frame, payload map[int]byte) {
	total := f.Len()
	decoded := make([]byte, total)
	decoded[0] = byte(f.Op)
	decoded[1] = f.ChipID
	respOff := f.RespOffset()
	for off, v := range payload {
		decoded[respOff+off] = v
	}
	raw := make([]byte, total)
	for i, b := range decoded {
		raw[i] = b ^ 0xFF
	}
	port.QueueResponse(raw)
}

// scriptSingleFPGAChipBoot queues the exact 13-frame exchange a
// 1-chip FPGA-class chain's Detect() walks through: RESET,
// AUTO_ADDRESS, READ_ID, READ_FEATURE, READ_REVISION, the 5-frame BIST
// broadcast, one READ_BIST poll, WRITE_NONCE, SET_CONTROL.
func scriptSingleFPGAChipBoot(port *transport.FakePort) {
	queueDecoded(port, codec.NewFrame(codec.OpReset, codec.BroadcastChipID).WithRespLen(respLenNone), nil)
	scriptAutoAddressOnward(port)
}

// scriptAutoAddressOnward queues the 12-frame exchange for steps
// 3-12 alone (no leading RESET broadcast), matching what Flush's
// initFromAutoAddress re-entry actually sends.
func scriptAutoAddressOnward(port *transport.FakePort) {
	queueDecoded(port, codec.NewFrame(codec.OpAutoAddress, codec.BroadcastChipID).WithParams(make([]byte, 32)).WithRespLen(respLenAutoAddress),
		map[int]byte{1: 1}) // 1 chip detected

	queueDecoded(port, codec.NewFrame(codec.OpReadID, 1).WithRespLen(respLenReadID),
		map[int]byte{3: 1}) // echoed id == 1

	queueDecoded(port, codec.NewFrame(codec.OpReadFeature, 1).WithRespLen(respLenReadFeature), nil) // feature=0 => FPGA, hash_depth=0

	queueDecoded(port, codec.NewFrame(codec.OpReadRevision, 1).WithRespLen(respLenReadFeature), nil)

	queueDecoded(port, codec.NewFrame(codec.OpWriteParm, codec.BroadcastChipID).WithParams(goldenParam).WithRespLen(respLenNone), nil)
	queueDecoded(port, codec.NewFrame(codec.OpWriteTarget, codec.BroadcastChipID).WithParams(goldenTargetPayload).WithRespLen(respLenNone), nil)
	queueDecoded(port, codec.NewFrame(codec.OpWriteNonce, codec.BroadcastChipID).WithParams(goldenNoncePayload).WithRespLen(respLenNone), nil)
	queueDecoded(port, codec.NewFrame(codec.OpSetDisable, codec.BroadcastChipID).WithParams(disableMask(chip.MaxCoresPerChip)).WithRespLen(respLenNone), nil)
	queueDecoded(port, codec.NewFrame(codec.OpRunBIST, codec.BroadcastChipID).WithParams(make([]byte, bistHashLen)).WithRespLen(respLenNone), nil)

	queueDecoded(port, codec.NewFrame(codec.OpReadBIST, 1).WithRespLen(respLenReadBIST),
		map[int]byte{0: 0x00, 1: 2}) // idle immediately, 2 live cores

	queueDecoded(port, codec.NewFrame(codec.OpWriteNonce, 1).WithParams(make([]byte, 8)).WithRespLen(respLenNone), nil)
	queueDecoded(port, codec.NewFrame(codec.OpSetControl, codec.BroadcastChipID).WithParams([]byte{0}).WithRespLen(respLenNone), nil)
}

func testOptions() config.Options {
	o := config.Options{MinChips: 0, MinCores: 1, TestMode: true, UDiv: 17}
	return o
}

func TestDetectSingleFPGAChipBoot(t *testing.T) {
	port := transport.NewFakePort()
	scriptSingleFPGAChipBoot(port)

	c := New(0, testOptions(), port, nil, nil, nil, nil)
	if err := c.Detect(); err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}

	if !c.isFPGA {
		t.Error("chain not recognized as FPGA class")
	}
	if c.numChips != 1 || c.numActive != 1 {
		t.Errorf("numChips/numActive = %d/%d, want 1/1", c.numChips, c.numActive)
	}
	if c.disabled {
		t.Error("chain disabled after a clean boot")
	}
	if c.chips[0] == nil || c.chips[0].State != chip.Ready {
		t.Fatalf("chip 0 not in Ready state after boot: %+v", c.chips[0])
	}
	if c.chips[0].NumCores != 2 {
		t.Errorf("NumCores = %d, want 2", c.chips[0].NumCores)
	}
	if c.chips[0].EndNonce != MaxNonceSizeFPGA {
		t.Errorf("EndNonce = %#x, want FPGA ceiling %#x", c.chips[0].EndNonce, MaxNonceSizeFPGA)
	}
}

func TestDetectRefusesToMineOnChipCountMismatch(t *testing.T) {
	port := transport.NewFakePort()
	port.QueueResponse(invertEcho(codec.OpReset, codec.BroadcastChipID, respLenNone))

	f := codec.NewFrame(codec.OpAutoAddress, codec.BroadcastChipID).WithParams(make([]byte, 32)).WithRespLen(respLenAutoAddress)
	queueDecoded(port, f, map[int]byte{1: 2}) // AUTO_ADDRESS reports 2 chips...
	// ...but no further responses are queued, so READ_ID never gets an
	// echo back from either chip_id: every chip fails to respond.

	c := New(0, testOptions(), port, nil, nil, nil, nil)
	if err := c.Detect(); err == nil {
		t.Fatal("Detect() should refuse to mine when READ_ID count does not match AUTO_ADDRESS")
	}
}

// invertEcho builds a minimal scripted response that only gets the
// echoed header right, for tests that don't care about any payload.
func invertEcho(op codec.Opcode, chipID uint8, respLen int) []byte {
	f := codec.NewFrame(op, chipID).WithRespLen(respLen)
	total := f.Len()
	decoded := make([]byte, total)
	decoded[0] = byte(op)
	decoded[1] = chipID
	raw := make([]byte, total)
	for i, b := range decoded {
		raw[i] = b ^ 0xFF
	}
	return raw
}
