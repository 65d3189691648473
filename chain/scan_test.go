package chain

import (
	"testing"

	"github.com/btc08io/btc08d/chip"
	"github.com/btc08io/btc08d/codec"
	"github.com/btc08io/btc08d/config"
	"github.com/btc08io/btc08d/driver"
	"github.com/btc08io/btc08d/transport"
)

// queueUpstream hands out a fixed number of Work items before
// reporting underflow, and records every WorkCompleted call.
type queueUpstream struct {
	remaining int
	completed []*driver.Work
}

func (u *queueUpstream) DequeueWork() (*driver.Work, bool) {
	if u.remaining <= 0 {
		return nil, false
	}
	u.remaining--
	return &driver.Work{}, true
}
func (u *queueUpstream) WorkCompleted(w *driver.Work) { u.completed = append(u.completed, w) }
func (u *queueUpstream) SubmitNonce(*driver.Work, uint32, uint8) bool { return true }

func TestPollOONClearsAndRefillsTwoSlots(t *testing.T) {
	port := transport.NewFakePort()
	up := &queueUpstream{remaining: 2}
	c := New(0, config.Options{}, port, nil, nil, up, nil)

	// CLEAR_OON is issued fast-path with no response payload.
	port.QueueResponse(invertEcho(codec.OpClearOON, codec.BroadcastChipID, respLenNone))

	retired, err := c.pollOON()
	if err != nil {
		t.Fatalf("pollOON failed: %v", err)
	}
	if retired != 0 {
		t.Errorf("retired = %d, want 0 (slots were empty before refill)", retired)
	}
	if up.remaining != 0 {
		t.Errorf("upstream still has %d items queued, pollOON should have drained both refill slots", up.remaining)
	}
	if !port.FastLog[0] {
		t.Error("CLEAR_OON was not issued at fast-path speed")
	}
	if c.lastQueuedID != 2 {
		t.Errorf("lastQueuedID = %d after 2 refills, want 2", c.lastQueuedID)
	}
}

func TestPollOONStopsOnUnderflow(t *testing.T) {
	port := transport.NewFakePort()
	up := &queueUpstream{remaining: 1}
	c := New(0, config.Options{}, port, nil, nil, up, nil)
	port.QueueResponse(invertEcho(codec.OpClearOON, codec.BroadcastChipID, respLenNone))

	retired, err := c.pollOON()
	if err != nil {
		t.Fatalf("pollOON failed: %v", err)
	}
	if retired != 0 {
		t.Errorf("retired = %d, want 0", retired)
	}
	if c.lastQueuedID != 1 {
		t.Errorf("lastQueuedID = %d, want 1 (only one item was available)", c.lastQueuedID)
	}
}

func TestPollGNRecordsStaleNonceForAFlushedSlot(t *testing.T) {
	port := transport.NewFakePort()
	up := &queueUpstream{}
	c := New(0, config.Options{}, port, nil, nil, up, nil)
	c.chips = []*chip.Chip{{ID: 1, State: chip.Ready}}
	// every slot starts empty (as after a flush), so the golden nonce
	// below must land on slot 0 while it is unoccupied.

	jobIDFrame := codec.NewFrame(codec.OpReadJobID, 1).WithRespLen(respLenReadJobID)
	queueDecoded(port, jobIDFrame, map[int]byte{1: 1, 2: 0x01}) // gn_job_id=1, GN flag set

	resultFrame := codec.NewFrame(codec.OpReadResult, 1).WithRespLen(respLenReadResult)
	queueDecoded(port, resultFrame, map[int]byte{17: 0x01}) // micro_job_id bit 0 set

	delta, err := c.pollGN()
	if err != nil {
		t.Fatalf("pollGN failed: %v", err)
	}
	if delta != 0 {
		t.Errorf("delta = %d, want 0 (a stale nonce is not a hardware-error penalty)", delta)
	}
	if c.chips[0].Stales != 1 {
		t.Errorf("Stales = %d, want 1", c.chips[0].Stales)
	}
	if c.chips[0].NoncesFound != 0 {
		t.Errorf("NoncesFound = %d, want 0 (upstream must never see a stale slot's nonce)", c.chips[0].NoncesFound)
	}
}

func TestPollGNForwardsNonceForAnOccupiedSlot(t *testing.T) {
	port := transport.NewFakePort()
	up := &queueUpstream{}
	c := New(0, config.Options{}, port, nil, nil, up, nil)
	c.chips = []*chip.Chip{{ID: 1, State: chip.Ready}}
	c.slots[0] = slot{work: &driver.Work{}, full: true}

	jobIDFrame := codec.NewFrame(codec.OpReadJobID, 1).WithRespLen(respLenReadJobID)
	queueDecoded(port, jobIDFrame, map[int]byte{1: 1, 2: 0x01})

	resultFrame := codec.NewFrame(codec.OpReadResult, 1).WithRespLen(respLenReadResult)
	queueDecoded(port, resultFrame, map[int]byte{17: 0x01})

	delta, err := c.pollGN()
	if err != nil {
		t.Fatalf("pollGN failed: %v", err)
	}
	if delta != 0 {
		t.Errorf("delta = %d, want 0 (upstream accepted the nonce)", delta)
	}
	if c.chips[0].NoncesFound != 1 {
		t.Errorf("NoncesFound = %d, want 1", c.chips[0].NoncesFound)
	}
}
