package chain

import (
	"fmt"
	"runtime"
	"time"

	"github.com/btc08io/btc08d/btcerr"
	"github.com/btc08io/btc08d/codec"
)

// ScanWork runs one steady-state pass: prime on the first call, then
// poll GN/OON until progress is made or an error occurs. It is the
// Ops.ScanWork entry point, re-entered serially by the framework
// thread; it must return promptly once progress is made.
func (c *Chain) ScanWork() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disabled {
		return 0, nil
	}

	c.sampleADC()

	if !c.primed {
		for i := 0; i < FIFODepth; i++ {
			w, ok := c.up.DequeueWork()
			if !ok {
				err := fmt.Errorf("chain %d: %w", c.id, btcerr.ErrUnderflow)
				if c.log != nil {
					c.log.Warnw("work queue underflow during prime", "chain", c.id, "error", err)
				}
				return 0, nil
			}
			if _, err := c.setWork(w); err != nil {
				c.disable(err)
				return 0, err
			}
		}
		c.primed = true
	}

	var rangesProcessed int64

	for {
		if c.lines != nil && c.lines.GNAsserted() {
			c.oonBeginAt = time.Time{}
			delta, err := c.pollGN()
			rangesProcessed += int64(delta)
			if err != nil {
				c.disable(err)
				return rangesProcessed * (1 << 32) * 4, err
			}
			// same raw-hash units as the OON branch below
			return rangesProcessed * (1 << 32) * 4, nil
		}

		if c.lines != nil && c.lines.OONAsserted() {
			if c.oonBeginAt.IsZero() {
				c.oonBeginAt = time.Now()
			} else if elapsed := time.Since(c.oonBeginAt); elapsed > time.Duration(c.timeoutOONMS)*time.Millisecond {
				err := fmt.Errorf("chain %d: oon processing exceeded %dms deadline: %w", c.id, c.timeoutOONMS, btcerr.ErrProtocol)
				c.disable(err)
				return 0, err
			}

			retired, err := c.pollOON()
			if err != nil {
				c.disable(err)
				return int64(retired), err
			}
			c.oonBeginAt = time.Time{}
			// the framework accounts nonce-space progress in raw
			// hash units: one retired range covers 2^32 nonces across
			// 4 ASIC-boost micro-jobs.
			return int64(retired) * (1 << 32) * 4, nil
		}

		if c.lines == nil {
			// No GPIO wired: used by the scripted-transport test
			// harness, which drives pollGN/pollOON directly instead.
			return rangesProcessed, nil
		}

		runtime.Gosched()
	}
}

// sampleADC takes one voltage reading off the chain's ADC channel, per
// scan pass, and stashes it for the stats surface. Reading is a
// non-fatal, best-effort affair: a failed sysfs read just leaves the
// previous snapshot in place rather than disabling the chain (voltage
// sensing is read-only per SPEC_FULL's non-goals — no feedback loop
// consumes this value).
func (c *Chain) sampleADC() {
	if c.adc == nil {
		return
	}
	mv, err := c.adc.ReadRawMilliVolts()
	if err != nil {
		if c.log != nil {
			c.log.Warnw("adc read failed", "chain", c.id, "error", err)
		}
		return
	}
	c.lastMilliVolts = mv
}

// pollGN iterates chip_id 1..N, harvests golden nonces from any chip
// whose READ_JOB_ID reports the GN bit, and forwards them upstream.
// Returns the net nonce-range delta: -1 for every nonce upstream
// rejects (a hardware error penalty), 0 otherwise.
func (c *Chain) pollGN() (int, error) {
	delta := 0
	for i, ch := range c.chips {
		if ch == nil || ch.Disabled {
			continue
		}
		id := uint8(i + 1)

		r, err := c.execChecked(codec.OpReadJobID, id, nil, respLenReadJobID, false)
		if err != nil {
			return delta, err
		}
		flags, ok := r.ByteAt(2)

		// §4.5 in-flight-job-overflow: the chip is still carrying
		// OONIntMaxJob+ queued jobs it hasn't cleared. demoteOrDisableChip
		// is a no-op for FPGA chips, which have no PLL to step down.
		if ok && int(flags&0x07) >= OONIntMaxJob {
			if err := c.demoteOrDisableChip(ch); err != nil {
				return delta, err
			}
		}

		if !ok || flags&0x01 == 0 {
			continue
		}
		gnJobID, _ := r.ByteAt(1)

		rr, err := c.execChecked(codec.OpReadResult, id, nil, respLenReadResult, false)
		if err != nil {
			return delta, err
		}
		payload := rr.Payload(respLenReadResult)
		if len(payload) < 18 {
			continue
		}
		var nonces [4]uint32
		for n := 0; n < 4; n++ {
			off := n * 4
			nonces[n] = uint32(payload[off])<<24 | uint32(payload[off+1])<<16 | uint32(payload[off+2])<<8 | uint32(payload[off+3])
		}
		microMask := payload[17]

		slotIdx := int(gnJobID) - 1
		if slotIdx < 0 || slotIdx >= NumSlots {
			continue
		}
		s := c.slots[slotIdx]
		if !s.full {
			ch.Stales++
			if c.log != nil {
				c.log.Warnw("stale nonce", "chain", c.id, "chip", id, "error", fmt.Errorf("chain %d: chip %d: %w", c.id, id, btcerr.ErrStale))
			}
			continue
		}

		for bit := 0; bit < 4; bit++ {
			if microMask&(1<<uint(bit)) == 0 {
				continue
			}
			ok := c.up.SubmitNonce(s.work, nonces[bit], uint8(bit))
			if ok {
				ch.NoncesFound++
			} else {
				ch.HWErrors++
				delta--
				if c.log != nil {
					c.log.Warnw("hardware error", "chain", c.id, "chip", id, "error", fmt.Errorf("chain %d: chip %d: %w", c.id, id, btcerr.ErrHardware))
				}
			}
		}
	}
	return delta, nil
}

// pollOON issues one CLEAR_OON broadcast at fast-path speed, then
// dequeues and sets up to 2 more works. Returns the number of nonce
// ranges retired by slot eviction across those set_work calls.
func (c *Chain) pollOON() (int, error) {
	if _, err := c.execChecked(codec.OpClearOON, codec.BroadcastChipID, nil, respLenNone, true); err != nil {
		return 0, err
	}

	retired := 0
	for i := 0; i < 2; i++ {
		w, ok := c.up.DequeueWork()
		if !ok {
			err := fmt.Errorf("chain %d: %w", c.id, btcerr.ErrUnderflow)
			if c.log != nil {
				c.log.Warnw("work queue underflow during oon refill", "chain", c.id, "error", err)
			}
			break
		}
		n, err := c.setWork(w)
		retired += n
		if err != nil {
			return retired, err
		}
	}
	return retired, nil
}
