package chain

import (
	"fmt"
	"time"

	"github.com/btc08io/btc08d/btcerr"
	"github.com/btc08io/btc08d/chip"
	"github.com/btc08io/btc08d/codec"
	"github.com/btc08io/btc08d/pll"
)

// Detect runs the chain-initialization state machine once, end to end:
// GPIO reset, RESET broadcast, AUTO_ADDRESS, per-chip READ_ID/FEATURE/
// REVISION, PLL program+lock, BIST, nonce-range assignment, and
// SET_CONTROL to arm the OON IRQ. It is the Ops.Detect entry point.
func (c *Chain) Detect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initLocked()
}

func (c *Chain) initLocked() error {
	// Step 1: reset GPIO.
	if c.lines != nil {
		c.lines.PulseReset(time.Millisecond)
	}

	// Step 2: RESET broadcast.
	if _, err := c.execChecked(codec.OpReset, codec.BroadcastChipID, nil, respLenNone, false); err != nil {
		return fmt.Errorf("chain %d: reset: %w", c.id, err)
	}

	return c.initFromAutoAddress()
}

// initFromAutoAddress runs steps 3-12: the hardware-reset pulse
// (step 1/2) is assumed already done by the caller. Flush re-enters
// here directly, per SPEC_FULL §4.5's "re-run init from step 3
// (AUTO_ADDRESS)".
func (c *Chain) initFromAutoAddress() error {
	// Step 3: AUTO_ADDRESS with a 32-byte zero parameter.
	resp, err := c.execChecked(codec.OpAutoAddress, codec.BroadcastChipID, make([]byte, 32), respLenAutoAddress, false)
	if err != nil {
		return fmt.Errorf("chain %d: auto_address: %w", c.id, err)
	}
	count, _ := resp.ByteAt(1)
	numChips := int(count)
	if c.opts.OverrideChipNum > 0 && c.opts.OverrideChipNum < numChips {
		numChips = c.opts.OverrideChipNum
	}
	c.numChips = numChips
	c.chips = make([]*chip.Chip, numChips)

	// Step 4: READ_ID from N down to 1; count matches as num_active_chips.
	// The newer "refuse to mine" path is implemented; the source's dead
	// two-phase set_last_chip reconfiguration is intentionally omitted
	// (see DESIGN.md).
	active := 0
	for id := numChips; id >= 1; id-- {
		r, err := c.exec(codec.OpReadID, uint8(id), nil, respLenReadID, false)
		if err != nil {
			continue
		}
		echoed, ok := r.ByteAt(3)
		if !ok || int(echoed) != id {
			continue
		}
		active++
		c.chips[id-1] = &chip.Chip{ID: id, State: chip.Detected}
	}
	c.numActive = active
	if active != numChips {
		return fmt.Errorf("chain %d: refuse to mine: %d of %d chips responded to READ_ID: %w", c.id, active, numChips, btcerr.ErrProtocol)
	}

	// Step 5: FEATURE/REVISION per chip.
	isFPGA := false
	for i, ch := range c.chips {
		if ch == nil {
			continue
		}
		r, err := c.execChecked(codec.OpReadFeature, uint8(i+1), nil, respLenReadFeature, false)
		if err != nil {
			return fmt.Errorf("chain %d: read_feature chip %d: %w", c.id, i+1, err)
		}
		b := r.Payload(4)
		if len(b) == 4 {
			feature := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
			ch.Feature = feature
			ch.HashDepth = int(b[3])
			if ch.Class() == chip.FeatureFPGA {
				isFPGA = true
			}
		}
		r2, err := c.execChecked(codec.OpReadRevision, uint8(i+1), nil, respLenReadFeature, false)
		if err == nil {
			b2 := r2.Payload(4)
			if len(b2) == 4 {
				ch.Revision = uint32(b2[0])<<24 | uint32(b2[1])<<16 | uint32(b2[2])<<8 | uint32(b2[3])
			}
		}
	}
	c.isFPGA = isFPGA
	if isFPGA {
		c.maxNonceSize = MaxNonceSizeFPGA
		c.timeoutOONMS = TimeoutOONFPGAMS
	} else {
		c.maxNonceSize = MaxNonceSizeASIC
		c.timeoutOONMS = TimeoutOONASICMS
	}

	// Step 6: minimum chip count (ASIC only).
	if !isFPGA && c.numChips < c.opts.MinChips {
		return fmt.Errorf("chain %d: %d chips below minimum %d: %w", c.id, c.numChips, c.opts.MinChips, btcerr.ErrConfig)
	}

	// Step 7: set PLL (skipped entirely on FPGA, which has no PLL; its
	// core clock is fixed, so Perf() still has a nonzero MHz term for
	// nonce-range partitioning).
	if isFPGA {
		for _, ch := range c.chips {
			if ch != nil {
				ch.MHz = FPGACoreClockMHz
			}
		}
	} else {
		if err := c.setPLL(); err != nil {
			return err
		}
	}

	// Step 8-9: BIST.
	if err := c.runBIST(); err != nil {
		return err
	}

	// Step 10: aggregate perf.
	c.recomputePerf()

	// Step 11: nonce range assignment.
	if err := c.assignNonceRanges(); err != nil {
		return err
	}

	// Step 12: SET_CONTROL broadcast (OON_IRQ_EN | udiv).
	const oonIRQEn = 0x80
	ctrl := byte(oonIRQEn | (c.opts.UDiv & 0x7F))
	if _, err := c.execChecked(codec.OpSetControl, codec.BroadcastChipID, []byte{ctrl}, respLenNone, false); err != nil {
		return fmt.Errorf("chain %d: set_control: %w", c.id, err)
	}

	c.disabled = false
	return nil
}

// setPLL programs every non-disabled chip to opts.PLLMHz per the PLL
// program sequence, then polls READ_PLL up to 25x40ms for the lock bit.
func (c *Chain) setPLL() error {
	mhz := c.opts.PLLMHz
	if mhz == 0 {
		mhz = pll.MinMHz
	}
	entry, err := pll.Lookup(mhz)
	if err != nil {
		return fmt.Errorf("chain %d: pll: %v: %w", c.id, err, btcerr.ErrConfig)
	}

	for i, ch := range c.chips {
		if ch == nil {
			continue
		}
		id := uint8(i + 1)
		if err := c.programChipPLL(id, entry); err != nil {
			ch.MHz = 0
			_ = ch.Transition(chip.Disabled)
			return err
		}
		ch.MHz = entry.FreqMHz
		_ = ch.Transition(chip.PLLLocked)
	}
	return nil
}

// programChipPLL runs the PLL program sequence for one chip and polls
// READ_PLL up to 25x40ms for the lock bit. It is shared by setPLL's
// initial programming pass and by demoteOrDisableChip's steady-state
// re-program.
func (c *Chain) programChipPLL(id uint8, entry pll.PMS) error {
	word := pll.ConfigWord(entry)
	wordBytes := []byte{byte(word >> 24), byte(word >> 16), byte(word >> 8), byte(word)}

	// disable FOUT
	if _, err := c.execChecked(codec.OpSetPLLFoutEn, id, []byte{0}, respLenNone, false); err != nil {
		return fmt.Errorf("chain %d: chip %d: pll fout disable: %w", c.id, id, err)
	}
	// write PMS config
	if _, err := c.execChecked(codec.OpSetPLLConfig, id, wordBytes, respLenNone, false); err != nil {
		return fmt.Errorf("chain %d: chip %d: pll config: %w", c.id, id, err)
	}
	// assert RESETB=0
	if _, err := c.execChecked(codec.OpSetPLLResetB, id, []byte{0}, respLenNone, false); err != nil {
		return fmt.Errorf("chain %d: chip %d: pll resetb low: %w", c.id, id, err)
	}
	// deassert RESETB=1
	if _, err := c.execChecked(codec.OpSetPLLResetB, id, []byte{1}, respLenNone, false); err != nil {
		return fmt.Errorf("chain %d: chip %d: pll resetb high: %w", c.id, id, err)
	}
	time.Sleep(time.Millisecond)
	// enable FOUT
	if _, err := c.execChecked(codec.OpSetPLLFoutEn, id, []byte{1}, respLenNone, false); err != nil {
		return fmt.Errorf("chain %d: chip %d: pll fout enable: %w", c.id, id, err)
	}

	locked := false
	for i := 0; i < 25; i++ {
		r, err := c.execChecked(codec.OpReadPLL, id, nil, respLenReadPLL, false)
		if err == nil {
			if b, ok := r.ByteAt(1); ok && b&0x80 != 0 {
				locked = true
				break
			}
		}
		time.Sleep(40 * time.Millisecond)
	}
	if !locked {
		return fmt.Errorf("chain %d: chip %d: pll lock timeout: %w", c.id, id, btcerr.ErrProtocol)
	}
	return nil
}

// recomputePerf recomputes the chain's aggregate performance score
// (Σ num_cores×mhz over non-disabled chips) after init or after a
// steady-state PLL demotion/disablement changes a chip's contribution.
func (c *Chain) recomputePerf() {
	var perf uint64
	for _, ch := range c.chips {
		if ch == nil || ch.Disabled {
			continue
		}
		perf += ch.Perf()
	}
	c.perf = perf
}

// demoteOrDisableChip implements the §4.5 in-flight-job-overflow
// policy: step the chip's PLL down by demoteStepMHz and retry, or
// disable it outright once it is already at the PLL floor. FPGA chips
// have no PLL to step down and are left alone. Nonce ranges are
// re-partitioned across the surviving chips afterward, since the
// perf weighting just changed.
func (c *Chain) demoteOrDisableChip(ch *chip.Chip) error {
	if ch.Class() == chip.FeatureFPGA {
		return nil
	}

	if ch.MHz <= pll.MinMHz {
		ch.MHz = 0
		_ = ch.Transition(chip.Disabled)
		if c.log != nil {
			c.log.Warnw("chip disabled: in-flight job overflow at PLL floor", "chain", c.id, "chip", ch.ID)
		}
	} else {
		newMHz := ch.MHz - demoteStepMHz
		if newMHz < pll.MinMHz {
			newMHz = pll.MinMHz
		}
		entry, err := pll.Lookup(newMHz)
		if err != nil {
			return fmt.Errorf("chain %d: chip %d: demote: %v: %w", c.id, ch.ID, err, btcerr.ErrConfig)
		}
		if err := c.programChipPLL(uint8(ch.ID), entry); err != nil {
			ch.MHz = 0
			_ = ch.Transition(chip.Disabled)
			return err
		}
		ch.MHz = entry.FreqMHz
		if c.log != nil {
			c.log.Warnw("chip PLL demoted after in-flight job overflow", "chain", c.id, "chip", ch.ID, "mhz", ch.MHz)
		}
	}

	c.recomputePerf()
	return c.assignNonceRanges()
}

// runBIST broadcasts the golden-vector self-test then polls READ_BIST
// per chip for the live core count.
func (c *Chain) runBIST() error {
	if _, err := c.execChecked(codec.OpWriteParm, codec.BroadcastChipID, goldenParam, respLenNone, false); err != nil {
		return fmt.Errorf("chain %d: bist write_parm: %w", c.id, err)
	}
	if _, err := c.execChecked(codec.OpWriteTarget, codec.BroadcastChipID, goldenTargetPayload, respLenNone, false); err != nil {
		return fmt.Errorf("chain %d: bist write_target: %w", c.id, err)
	}
	if _, err := c.execChecked(codec.OpWriteNonce, codec.BroadcastChipID, goldenNoncePayload, respLenNone, false); err != nil {
		return fmt.Errorf("chain %d: bist write_nonce: %w", c.id, err)
	}
	if _, err := c.execChecked(codec.OpSetDisable, codec.BroadcastChipID, disableMask(chip.MaxCoresPerChip), respLenNone, false); err != nil {
		return fmt.Errorf("chain %d: bist set_disable: %w", c.id, err)
	}
	bistHash := make([]byte, bistHashLen)
	if _, err := c.execChecked(codec.OpRunBIST, codec.BroadcastChipID, bistHash, respLenNone, false); err != nil {
		return fmt.Errorf("chain %d: run_bist: %w", c.id, err)
	}

	for i, ch := range c.chips {
		if ch == nil {
			continue
		}
		id := uint8(i + 1)
		idle := false
		cores := 0
		for iter := 0; iter < 10; iter++ {
			r, err := c.execChecked(codec.OpReadBIST, id, nil, respLenReadBIST, false)
			if err == nil {
				b0, _ := r.ByteAt(0)
				if b0&0x01 == 0 {
					idle = true
					if b1, ok := r.ByteAt(1); ok {
						cores = int(b1)
					}
					break
				}
			}
			time.Sleep(200 * time.Millisecond)
		}
		if !idle {
			return fmt.Errorf("chain %d: chip %d: bist timeout: %w", c.id, id, btcerr.ErrProtocol)
		}
		minCores := c.opts.MinCores
		if ch.Class() == chip.FeatureFPGA {
			minCores = 1
		}
		if cores < minCores {
			_ = ch.Transition(chip.Disabled)
			continue
		}
		ch.NumCores = cores
		if ch.State == chip.Detected {
			// FPGA chips skip PLL programming entirely, so they are
			// still sitting in Detected here; route them through
			// PLLLocked so the BISTPassed/Ready transitions below are
			// valid instead of silently rejected.
			_ = ch.Transition(chip.PLLLocked)
		}
		if err := ch.Transition(chip.BISTPassed); err != nil && c.log != nil {
			c.log.Warnw("chip state transition", "chain", c.id, "chip", id, "error", err)
		}
		if err := ch.Transition(chip.Ready); err != nil && c.log != nil {
			c.log.Warnw("chip state transition", "chain", c.id, "chip", id, "error", err)
		}
	}
	return nil
}

// assignNonceRanges partitions [0, maxNonceSize] proportionally across
// non-disabled chips by perf, broadcasting each assignment via
// WRITE_NONCE. In test mode every non-disabled chip gets the full
// range instead, so a single chip's golden nonce is reachable
// regardless of chain position.
func (c *Chain) assignNonceRanges() error {
	live := make([]*chip.Chip, 0, len(c.chips))
	for _, ch := range c.chips {
		if ch != nil && !ch.Disabled {
			live = append(live, ch)
		}
	}
	if len(live) == 0 {
		return fmt.Errorf("chain %d: no live chips to assign nonce ranges", c.id)
	}

	if c.opts.TestMode {
		for _, ch := range live {
			ch.StartNonce = 0
			ch.EndNonce = c.maxNonceSize
			if err := c.writeNonceRange(ch); err != nil {
				return err
			}
		}
		return nil
	}

	var start uint32
	for i, ch := range live {
		ch.StartNonce = start
		if i == len(live)-1 {
			ch.EndNonce = c.maxNonceSize
		} else {
			span := uint64(c.maxNonceSize) * ch.Perf() / c.perf
			ch.EndNonce = ch.StartNonce + uint32(span)
			start = ch.EndNonce + 1
		}
		if err := c.writeNonceRange(ch); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain) writeNonceRange(ch *chip.Chip) error {
	params := []byte{
		byte(ch.StartNonce >> 24), byte(ch.StartNonce >> 16), byte(ch.StartNonce >> 8), byte(ch.StartNonce),
		byte(ch.EndNonce >> 24), byte(ch.EndNonce >> 16), byte(ch.EndNonce >> 8), byte(ch.EndNonce),
	}
	_, err := c.execChecked(codec.OpWriteNonce, uint8(ch.ID), params, respLenNone, false)
	if err != nil {
		return fmt.Errorf("chain %d: chip %d: write_nonce: %w", c.id, ch.ID, err)
	}
	return nil
}
