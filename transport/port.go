// Package transport implements framed SPI I/O against one bus/chip-select
// endpoint: a raw transfer primitive, a fast-path (20x speed) primitive,
// and a batched multi-frame primitive for back-to-back command streams.
package transport

import "errors"

// ErrLenNotAligned is returned by TransferFast when len is not a
// multiple of 4, per the fast-path precondition.
var ErrLenNotAligned = errors.New("transport: length must be a multiple of 4")

// ErrRejected is returned when the underlying device rejects a
// transfer outright (a transport-class failure per the error taxonomy).
var ErrRejected = errors.New("transport: transfer rejected")

// BatchFrame is one leg of a TransferBatch burst: its own tx/rx
// buffers, a fast-path flag, and whether chip-select should stay
// asserted into the next frame in the same burst.
type BatchFrame struct {
	Tx       []byte
	Rx       []byte
	Fast     bool
	CSChange bool
}

// Port is the transport contract the chain controller drives. A
// production implementation opens one SPI bus/chip-select endpoint for
// the process lifetime (periph.io-backed, see PeriphPort); a FakePort
// implementation scripts chip responses in tests without hardware.
type Port interface {
	// Transfer exchanges len(tx) bytes at the configured bus speed.
	// rx must be at least as long as tx; unused rx bytes are filled
	// with 0xFF before the exchange, matching the chain's idle line
	// level. Returns ErrRejected if the device rejects the transfer.
	Transfer(tx, rx []byte) error

	// TransferFast is identical to Transfer but issued at 20x the
	// configured bus speed. len(tx) must be a multiple of 4.
	TransferFast(tx, rx []byte) error

	// TransferBatch submits frames as one back-to-back burst with no
	// host-side gaps, used to stream WRITE_PARM -> WRITE_TARGET ->
	// RUN_JOB without releasing the bus between them.
	TransferBatch(frames []BatchFrame) error

	// Close releases the underlying bus handle.
	Close() error
}

// fillIdle pre-fills rx with 0xFF, the bus idle level, before an
// exchange — a transfer that fails to produce any data for a byte
// leaves that byte looking like "no response" rather than a stale
// zero from a previous call.
func fillIdle(rx []byte) {
	for i := range rx {
		rx[i] = 0xFF
	}
}
