package chain

// Response payload lengths per opcode, per the external interfaces'
// key response layouts (offsets are all relative to RespOffset, i.e.
// after the 2-byte opcode/chip_id echo).
const (
	respLenReadID      = 4
	respLenAutoAddress = 2
	respLenReadJobID   = 4
	respLenReadBIST    = 2
	respLenReadResult  = 18
	respLenReadPLL     = 4
	respLenReadFeature = 4
	respLenReadHash    = 128
	respLenNone        = 0
)

// WriteParmLen is the fixed 140-byte WRITE_PARM payload: midstate0(32)
// + data[64:76](12) + midstate1(32) + midstate2(32) + midstate3(32).
const WriteParmLen = 32 + 12 + 32*3

// bistHashLen is the 1024-bit (4x256) expected BIST hash parameter
// RUN_BIST carries for the ASIC-boost 4-midstate variant.
const bistHashLen = 128
