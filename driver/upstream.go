// Package driver defines the narrow boundary between the BTC08 chain
// core and the outer miner framework: the work item shape and the
// upstream callbacks the job pipeline drives. It intentionally does
// not implement a work-queue, a nonce validator, or a pool protocol —
// those are the outer framework's job per the purpose & scope's
// explicit exclusions. The shape mirrors the teacher's
// clients.Client/driver.MiningFuncs collaborator interfaces without
// carrying their stratum/pool-protocol implementation.
package driver

// Work is one upstream mining job as handed to the pipeline: a
// 128-byte block-header data buffer and four precomputed 32-byte
// midstates (the four ASIC-boost version-mask variants; for a non
// ASIC-boost pool, Midstates[1..3] are unused duplicates/zero and
// VersionRolling is false).
type Work struct {
	// Data is the 128-byte block header buffer; bytes [64:76] (merkle
	// root tail + timestamp + nbits) are copied into the WRITE_PARM
	// payload alongside the midstates.
	Data [128]byte

	// Midstates holds the SHA-256 midstate after the first 64 header
	// bytes, one per ASIC-boost micro-job.
	Midstates [4][32]byte

	// Target is the work's full 256-bit difficulty target, big-endian,
	// from which the compact nbits and select0/select1 for WRITE_TARGET
	// are derived.
	Target [32]byte

	// SDiff is the work's share difficulty; WRITE_TARGET is only
	// re-sent when this differs from the chain's remembered value.
	SDiff float64

	// VersionRolling marks a pool using the version-mask (ASIC-boost)
	// variant; RUN_JOB's ASIC-boost-enable bit mirrors this.
	VersionRolling bool

	// JobID is filled in by the pipeline's set_work once the work is
	// placed into a slot (1..8, host mirror 0..7).
	JobID int
}

// Upstream is the driver core's only dependency on the outer
// framework — the weak back-reference the design notes describe,
// modeled as an interface rather than a cgpu<->chain pointer cycle.
type Upstream interface {
	// DequeueWork pulls the next work item off the upstream queue.
	// The bool is false on underflow.
	DequeueWork() (*Work, bool)

	// WorkCompleted releases the driver's ownership of a work item,
	// normally on slot eviction, flush, or chain teardown.
	WorkCompleted(w *Work)

	// SubmitNonce reports a candidate nonce for revalidation. Returns
	// false if upstream's host-side check rejects it (a hardware
	// error, per the error taxonomy).
	SubmitNonce(w *Work, nonce uint32, microJobID uint8) bool
}
