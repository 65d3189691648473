package chain

// BIST golden vectors: a fixed WRITE_PARM/WRITE_TARGET/WRITE_NONCE
// triplet broadcast to every chip during init step 8. RUN_BIST is sent
// with an all-zero expected-hash parameter (bistHashLen bytes), and
// init reads back only each chip's live core count from READ_BIST;
// GoldenNonce below is not compared against any chip result during
// init.

// goldenParam is the 140-byte WRITE_PARM payload used for BIST: a fixed
// midstate0, a fixed 12-byte data tail, and three more fixed midstates
// for the ASIC-boost micro-jobs. The exact golden vector is chip
// firmware's self-test constant; this driver only needs it to be
// stable across BIST runs, not meaningful as mining data.
var goldenParam = func() []byte {
	p := make([]byte, 140)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}()

// goldenTargetPayload is the literal 6-byte WRITE_TARGET parameter
// used for BIST (nbits + select, not a generic target derived via
// NBitsFromTarget — this is chip firmware's fixed self-test constant).
var goldenTargetPayload = []byte{0x17, 0x37, 0x6F, 0x56, 0x05, 0x00}

// goldenNoncePayload is the literal 8-byte WRITE_NONCE parameter used
// for BIST: 4-byte big-endian start followed by 4-byte big-endian end,
// both equal, so every live core lands on the same single nonce.
var goldenNoncePayload = []byte{0x66, 0xCB, 0x34, 0x26, 0x66, 0xCB, 0x34, 0x26}

// goldenNonceBase is the raw nonce BIST reports from a hash_depth=0,
// single-core chip; real chips back-correct it by hash_depth*num_cores
// because the self-test vector is shared across every core pipeline in
// parallel, each offset from the last by one depth-step.
const goldenNonceBase uint32 = 0x0D473A59

// GoldenNonce returns the expected READ_RESULT nonce for a chip with
// the given hash depth and live core count running the BIST golden
// vector.
func GoldenNonce(hashDepth, numCores int) uint32 {
	return goldenNonceBase + uint32(hashDepth*numCores)
}

// disableMask computes the SET_DISABLE core-disable bitmask for a chip
// configured to use numCores out of MaxCoresPerChip cores: bit i is set
// (core i disabled) for every core index >= numCores.
func disableMask(numCores int) []byte {
	const total = 206
	mask := make([]byte, (total+7)/8)
	for i := numCores; i < total; i++ {
		mask[i/8] |= 1 << uint(i%8)
	}
	return mask
}
