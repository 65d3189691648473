// Package btcerr defines the sentinel errors bubbled up from the BTC08
// chain controller, following the error taxonomy of the driver's design.
package btcerr

import "errors"

// Sentinel errors. Wrap with fmt.Errorf("...: %w", ErrX) at the call site
// so callers can still errors.Is against the category while keeping a
// specific message.
var (
	// ErrTransport covers SPI transfers that return short or that the
	// underlying ioctl rejects outright. A chain that hits ErrTransport
	// is marked disabled; recovery is re-init on the next flush.
	ErrTransport = errors.New("btc08: transport error")

	// ErrProtocol covers opcode/chip_id echo mismatches and PLL-lock or
	// BIST timeouts.
	ErrProtocol = errors.New("btc08: protocol error")

	// ErrHardware covers a nonce rejected by the upstream validator.
	ErrHardware = errors.New("btc08: hardware error")

	// ErrStale covers a golden nonce arriving for a job slot whose work
	// reference was already cleared by a flush.
	ErrStale = errors.New("btc08: stale nonce")

	// ErrUnderflow covers the upstream work queue running dry when the
	// pipeline needs a refill.
	ErrUnderflow = errors.New("btc08: work queue underflow")

	// ErrConfig covers a configuration value that init rejects (PLL
	// below table minimum, chip count below threshold).
	ErrConfig = errors.New("btc08: configuration error")
)
