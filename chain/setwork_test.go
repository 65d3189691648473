package chain

import (
	"testing"

	"github.com/btc08io/btc08d/config"
	"github.com/btc08io/btc08d/driver"
	"github.com/btc08io/btc08d/transport"
)

// testUpstream is a scripted driver.Upstream that just counts
// WorkCompleted calls; DequeueWork/SubmitNonce are unused by setWork
// itself.
type testUpstream struct {
	completed []*driver.Work
}

func (u *testUpstream) DequeueWork() (*driver.Work, bool) { return nil, false }
func (u *testUpstream) WorkCompleted(w *driver.Work)      { u.completed = append(u.completed, w) }
func (u *testUpstream) SubmitNonce(*driver.Work, uint32, uint8) bool { return false }

func newTestChain(port *transport.FakePort, up driver.Upstream) *Chain {
	return New(0, config.Options{}, port, nil, nil, up, nil)
}

func TestSetWorkAssignsSequentialJobIDs(t *testing.T) {
	port := transport.NewFakePort()
	c := newTestChain(port, &testUpstream{})

	for i := 1; i <= FIFODepth; i++ {
		w := &driver.Work{}
		if _, err := c.setWork(w); err != nil {
			t.Fatalf("setWork #%d failed: %v", i, err)
		}
		if w.JobID != i {
			t.Errorf("setWork #%d: JobID = %d, want %d", i, w.JobID, i)
		}
	}
}

func TestSetWorkEvictsOldestSlotOnWraparound(t *testing.T) {
	port := transport.NewFakePort()
	up := &testUpstream{}
	c := newTestChain(port, up)

	for i := 0; i < NumSlots; i++ {
		w := &driver.Work{}
		if _, err := c.setWork(w); err != nil {
			t.Fatalf("setWork #%d failed: %v", i, err)
		}
	}
	if len(up.completed) != 0 {
		t.Fatalf("no slot should have been evicted yet, got %d completions", len(up.completed))
	}

	// The (NumSlots+1)th call wraps back onto slot 0, which still
	// holds the first work item (job_id 1); it must be retired via
	// WorkCompleted. setWork stores its own copy of each Work (see
	// DESIGN.md), so identity is checked by JobID, not by pointer.
	retired, err := c.setWork(&driver.Work{})
	if err != nil {
		t.Fatalf("wraparound setWork failed: %v", err)
	}
	if retired != 1 {
		t.Errorf("retired = %d, want 1", retired)
	}
	if len(up.completed) != 1 || up.completed[0].JobID != 1 {
		t.Fatalf("expected job_id 1's work to be retired, got %+v", up.completed)
	}
}

func TestSetWorkSendsWriteTargetOnlyOnSDiffChange(t *testing.T) {
	port := transport.NewFakePort()
	c := newTestChain(port, &testUpstream{})

	w1 := &driver.Work{SDiff: 1024}
	if _, err := c.setWork(w1); err != nil {
		t.Fatalf("setWork #1 failed: %v", err)
	}
	firstLegs := len(port.Log)
	if firstLegs != 3 {
		t.Fatalf("first set_work (unprimed sdiff) sent %d legs, want 3 (parm+target+run_job)", firstLegs)
	}

	w2 := &driver.Work{SDiff: 1024}
	if _, err := c.setWork(w2); err != nil {
		t.Fatalf("setWork #2 failed: %v", err)
	}
	secondLegs := len(port.Log) - firstLegs
	if secondLegs != 2 {
		t.Fatalf("set_work with unchanged sdiff sent %d legs, want 2 (parm+run_job, no write_target)", secondLegs)
	}

	w3 := &driver.Work{SDiff: 2048}
	if _, err := c.setWork(w3); err != nil {
		t.Fatalf("setWork #3 failed: %v", err)
	}
	thirdLegs := len(port.Log) - firstLegs - secondLegs
	if thirdLegs != 3 {
		t.Fatalf("set_work after an sdiff change sent %d legs, want 3 (parm+target+run_job)", thirdLegs)
	}
}
