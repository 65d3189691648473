// Package chain implements the chain controller: chip roster,
// assigned nonce ranges, the active job-slot ring, init/re-init,
// flush/abort, and the steady-state scan pass. It is the largest
// component by design budget and owns all per-chain mutable state
// behind a single mutex, per the concurrency & resource model.
package chain

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/btc08io/btc08d/chip"
	"github.com/btc08io/btc08d/config"
	"github.com/btc08io/btc08d/driver"
	"github.com/btc08io/btc08d/gpio"
	"github.com/btc08io/btc08d/transport"
)

// Job-slot ring geometry: the in-chip FIFO is 4 deep; the host mirrors
// 8 slots so job_id (1-based) can advance past the in-flight depth
// before wrapping, matching the source's MAX_JOB_ID_NUM/JOB_ID_NUM_MASK
// shape reduced to this driver's slot count.
const (
	NumSlots  = 8
	FIFODepth = 4

	// OONIntMaxJob is the in-flight job count at which a chip's
	// READ_JOB_ID report, combined with it already sitting at the
	// PLL floor, is read as a disablement signal.
	OONIntMaxJob = 2

	// MaxNonceSizeASIC/FPGA bound the per-chip nonce-range partition.
	MaxNonceSizeASIC = 0xFFFFFFFF
	MaxNonceSizeFPGA = 0x07FFFFFF

	// TimeoutOONASICMS/FPGAMS are the OON processing deadlines.
	TimeoutOONASICMS = 4000
	TimeoutOONFPGAMS = 120000

	// FPGACoreClockMHz is the fixed core clock an FPGA emulator chip
	// runs at; it has no PLL to program, so this stands in for MHz in
	// the perf/nonce-range-partition computation instead of leaving it
	// at zero.
	FPGACoreClockMHz = 50

	// demoteStepMHz is how far an ASIC chip's PLL is stepped down per
	// in-flight job overflow before it is disabled outright.
	demoteStepMHz = 50
)

// slot is one entry in the host-side job-slot ring.
type slot struct {
	work *driver.Work
	full bool
}

// Chain owns all state for one attached hash board chain.
type Chain struct {
	mu sync.Mutex

	id   int
	opts config.Options
	log  *zap.SugaredLogger

	port  transport.Port
	lines *gpio.Lines
	adc   gpio.ADCReader
	up    driver.Upstream

	chips        []*chip.Chip // index 0-based, wire chip_id = index+1
	numChips     int
	numActive    int
	isFPGA       bool
	maxNonceSize uint32
	timeoutOONMS int64
	perf         uint64

	slots         [NumSlots]slot
	lastQueuedID  int // 0..7
	sdiff         float64
	sdiffPrimed   bool
	primed        bool
	noncesPerPass int

	disabled   bool
	oonBeginAt time.Time

	// lastMilliVolts is the most recent ADC reading (mV = raw*1800/4096),
	// the "last temperature snapshot" of the data model. Voltage sensing
	// is read-only per the non-goals: nothing converts this to a
	// temperature or feeds it back into control.
	lastMilliVolts int
}

// New constructs a chain bound to the given transport/GPIO/ADC/upstream
// collaborators and the immutable configuration snapshot. It performs
// no I/O; call Detect/Init (via Ops) to bring the chain up.
func New(id int, opts config.Options, port transport.Port, lines *gpio.Lines, adc gpio.ADCReader, up driver.Upstream, log *zap.SugaredLogger) *Chain {
	return &Chain{
		id:           id,
		opts:         opts,
		log:          log,
		port:         port,
		lines:        lines,
		adc:          adc,
		up:           up,
		maxNonceSize: MaxNonceSizeASIC,
		timeoutOONMS: TimeoutOONASICMS,
	}
}

// ID returns the chain's identifier (SPI bus/chip-select index).
func (c *Chain) ID() int { return c.id }

// Ops is the record of function pointers supplied at registration,
// replacing the virtual-dispatch device-table pattern the source used
// (and the retrieval pack's Device{PreScan,Scan,PollResult,DetectBoard}
// struct mirrors directly): the framework holds this value and never a
// concrete *Chain method set.
type Ops struct {
	Detect    func() error
	ScanWork  func() (int64, error)
	QueueFull func() bool
	Flush     func() error
	Stats     func() Stats
}

// NewOps builds the function-pointer table for c.
func NewOps(c *Chain) Ops {
	return Ops{
		Detect:    c.Detect,
		ScanWork:  c.ScanWork,
		QueueFull: c.QueueFull,
		Flush:     c.Flush,
		Stats:     c.Stats,
	}
}

// Stats is the read-only snapshot exposed to the collaborator status
// surface (gorilla/mux+rpc in package miner, per SPEC_FULL §2b).
type Stats struct {
	ChainID        int
	NumChips       int
	NumActiveChips int
	Disabled       bool
	TotalPerf      uint64
	NoncesFound    int
	HWErrors       int
	Stales         int
	MilliVolts     int
}

// Stats returns a point-in-time snapshot under the chain's mutex.
func (c *Chain) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		ChainID:        c.id,
		NumChips:       c.numChips,
		NumActiveChips: c.numActive,
		Disabled:       c.disabled,
		TotalPerf:      c.perf,
		MilliVolts:     c.lastMilliVolts,
	}
	for _, ch := range c.chips {
		if ch == nil {
			continue
		}
		s.NoncesFound += ch.NoncesFound
		s.HWErrors += ch.HWErrors
		s.Stales += ch.Stales
	}
	return s
}

// Disabled reports the sticky disabled flag the framework observes.
func (c *Chain) Disabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled
}

func (c *Chain) disable(reason error) {
	c.disabled = true
	if c.log != nil {
		c.log.Errorw("chain disabled", "chain", c.id, "reason", reason)
	}
}

// QueueFull takes the chain's mutex and reports true once FIFODepth or
// more host-side slots are occupied, i.e. no room before the first OON.
// It only checks: it does not enqueue work. Work enters the chain
// through Upstream.DequeueWork during ScanWork.
func (c *Chain) QueueFull() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	occupied := 0
	for _, s := range c.slots {
		if s.full {
			occupied++
		}
	}
	return occupied >= FIFODepth
}
