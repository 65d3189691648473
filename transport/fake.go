package transport

import "sync"

// FakePort is an in-memory Port used throughout the test suite to
// script chip responses without real hardware, the way the teacher's
// driver package is exercised against a test double rather than an
// opened serial device.
type FakePort struct {
	mu sync.Mutex

	// Responses is consumed in FIFO order, one per Transfer/
	// TransferFast call; each entry is copied into the caller's rx
	// buffer (truncated to fit; rx bytes past a shorter entry keep the
	// 0xFF idle value). If empty, rx is left
	// at its pre-filled idle value (0xFF) and no error is returned,
	// simulating an unresponsive chip.
	Responses [][]byte

	// Rejected, when true, makes every call return ErrRejected
	// without consuming a response (simulates a transport-class
	// failure).
	Rejected bool

	// Log records every tx buffer submitted, in order, for assertions
	// about exactly which frames were sent and in what sequence.
	Log [][]byte

	// FastLog records whether each submitted frame asked for the
	// fast-path speed.
	FastLog []bool
}

// NewFakePort returns an empty, non-rejecting fake.
func NewFakePort() *FakePort {
	return &FakePort{}
}

// QueueResponse appends one scripted response, returned to the next
// Transfer/TransferFast call.
func (f *FakePort) QueueResponse(resp []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses = append(f.Responses, resp)
}

func (f *FakePort) transfer(tx, rx []byte, fast bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Log = append(f.Log, append([]byte(nil), tx...))
	f.FastLog = append(f.FastLog, fast)

	if f.Rejected {
		return ErrRejected
	}

	fillIdle(rx)
	if len(f.Responses) == 0 {
		return nil
	}
	resp := f.Responses[0]
	f.Responses = f.Responses[1:]
	n := copy(rx, resp)
	_ = n
	return nil
}

func (f *FakePort) Transfer(tx, rx []byte) error {
	return f.transfer(tx, rx, false)
}

func (f *FakePort) TransferFast(tx, rx []byte) error {
	if len(tx)%4 != 0 {
		return ErrLenNotAligned
	}
	return f.transfer(tx, rx, true)
}

func (f *FakePort) TransferBatch(frames []BatchFrame) error {
	for _, fr := range frames {
		if err := f.transfer(fr.Tx, fr.Rx, fr.Fast); err != nil {
			return err
		}
	}
	return nil
}

func (f *FakePort) Close() error { return nil }
