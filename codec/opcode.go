// Package codec implements the BTC08 chip command framing: a typed
// frame builder that appends opcode, chip_id, fields, and alignment
// padding, and a frame view that strips the echoed header and exposes
// response fields by offset. No pointer casts, no unsafe.
package codec

// Opcode is a BTC08 chip command code. Values follow the wire encoding;
// the exact numeric assignment is internal to the chain (only chip
// firmware and this codec need to agree on it), so they are declared in
// allocation order rather than mirroring any particular silicon
// revision's datasheet numbering.
type Opcode uint8

// Full opcode set, per the command codec's component design.
const (
	OpReadID Opcode = iota
	OpAutoAddress
	OpRunBIST
	OpReadBIST
	OpReset
	OpSetPLLConfig
	OpReadPLL
	OpWriteParm
	OpReadParm
	OpWriteTarget
	OpReadTarget
	OpRunJob
	OpReadJobID
	OpReadResult
	OpClearOON
	OpSetDisable
	OpReadDisable
	OpSetControl
	OpDebug
	OpWriteNonce
	OpWriteCoreCfg
	OpReadDebugCnt
	OpReadHash
	OpWriteIOCtrl
	OpReadIOCtrl
	OpReadFeature
	OpReadRevision
	OpSetPLLFoutEn
	OpSetPLLResetB
	OpWriteCoreDepth
	OpSetTMode
)

// BroadcastChipID addresses every chip in the chain; it shifts through
// the whole chain and the ACK wraps back to the host.
const BroadcastChipID uint8 = 0

// headerLen is the opcode+chip_id echo every response begins with.
const headerLen = 2

// dummyLen is the two trailing dummy bytes appended to every command to
// keep the SPI clock running while the chain shifts the command through.
const dummyLen = 2

// align rounds n up to the next multiple of 4, matching the chain's
// 32-bit-word framing requirement.
func align(n int) int {
	return (n + 3) &^ 3
}
