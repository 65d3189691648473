package chain

import (
	"github.com/jinzhu/copier"

	"github.com/btc08io/btc08d/codec"
	"github.com/btc08io/btc08d/driver"
)

// setWork implements the set_work contract. Caller must hold c.mu.
// Returns the number of nonce ranges this call retired by evicting an
// occupied slot (0 or 1).
func (c *Chain) setWork(w *driver.Work) (int, error) {
	jobID := c.lastQueuedID + 1
	retired := 0

	evicted := c.slots[c.lastQueuedID]
	if evicted.full {
		if c.up != nil {
			c.up.WorkCompleted(evicted.work)
		}
		retired = 1
	}

	parm := make([]byte, 0, WriteParmLen)
	parm = append(parm, w.Midstates[0][:]...)
	parm = append(parm, w.Data[64:76]...)
	parm = append(parm, w.Midstates[1][:]...)
	parm = append(parm, w.Midstates[2][:]...)
	parm = append(parm, w.Midstates[3][:]...)

	frames := make([]*codec.Frame, 0, 3)

	parmFrame := codec.NewFrame(codec.OpWriteParm, codec.BroadcastChipID).WithParams(parm)
	parmFrame.FastPath = true
	parmFrame.CSChange = true
	frames = append(frames, parmFrame)

	if w.SDiff != c.sdiff || !c.sdiffPrimed {
		nbits := NBitsFromTarget(w.Target)
		targetFrame := codec.NewFrame(codec.OpWriteTarget, codec.BroadcastChipID).WithParams(writeTargetPayload(nbits))
		targetFrame.FastPath = true
		targetFrame.CSChange = true
		frames = append(frames, targetFrame)
		c.sdiff = w.SDiff
		c.sdiffPrimed = true
	}

	asicBoost := byte(0)
	if w.VersionRolling {
		asicBoost = 0x01
	}
	runJobParams := []byte{asicBoost, 0, 0, byte(jobID)}
	runJobFrame := codec.NewFrame(codec.OpRunJob, codec.BroadcastChipID).WithParams(runJobParams)
	runJobFrame.FastPath = true
	frames = append(frames, runJobFrame)

	if err := c.batch(frames); err != nil {
		return retired, err
	}

	w.JobID = jobID

	// The slot ring keeps its own copy rather than the caller's *Work,
	// the way the teacher's driver backs up a work item before handing
	// it off to async processing: upstream is free to reuse or mutate
	// its own Work value the instant setWork returns.
	stored := new(driver.Work)
	copier.Copy(stored, w)
	c.slots[c.lastQueuedID] = slot{work: stored, full: true}
	c.lastQueuedID = (c.lastQueuedID + 1) % NumSlots

	return retired, nil
}
