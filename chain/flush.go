package chain

import (
	"fmt"
	"time"
)

// Flush discards all in-flight work, hardware-resets the chain, and
// re-runs init from AUTO_ADDRESS. Requested by upstream when the
// mined block changes. sdiff is cleared so the next set_work re-sends
// WRITE_TARGET.
func (c *Chain) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.slots {
		if c.slots[i].full {
			if c.up != nil {
				c.up.WorkCompleted(c.slots[i].work)
			}
			c.slots[i] = slot{}
		}
	}

	// Drain anything still queued upstream so none of it is silently
	// dropped on the floor.
	if c.up != nil {
		for {
			w, ok := c.up.DequeueWork()
			if !ok {
				break
			}
			c.up.WorkCompleted(w)
		}
	}

	c.lastQueuedID = 0
	c.sdiff = 0
	c.sdiffPrimed = false
	c.primed = false

	if c.lines != nil {
		c.lines.PulseReset(time.Millisecond)
	}

	if err := c.initFromAutoAddress(); err != nil {
		c.disable(err)
		return fmt.Errorf("chain %d: flush re-init: %w", c.id, err)
	}
	return nil
}

// abort marks the chain disabled after a fatal transport failure. The
// next ScanWork call returns 0 immediately; recovery is Flush.
func (c *Chain) abort(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disable(cause)
}
