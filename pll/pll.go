// Package pll builds the BTC08 PLL programming word and holds the
// frequency table the chain's Set-PLL step selects from. The source
// drove this through a tagged union over a C bitfield; per the design
// note on bitfield PLL configuration, this package instead synthesizes
// the word by explicit shifts and masks.
package pll

import "fmt"

// MinMHz/MaxMHz bound the supported frequency table: requests below
// MinMHz fail outright; requests above MaxMHz clamp to MaxMHz.
const (
	MinMHz = 50
	MaxMHz = 1000
	refMHz = 25 // on-chip reference oscillator
)

// PMS is one frequency table entry's divider triplet plus the fixed
// configuration flags that accompany it.
type PMS struct {
	FreqMHz int
	P, M, S int
	Bypass  int
	DivSel  int
	AfcEnb  int
	ExtAFC  int
	FeedEn  int
	FSel    int
}

// Table is the ordered {freq, PMS} set spanning 24-1000 MHz. Entries
// are synthesized from the standard integer-N PLL relation
// Fout = Fref * M / (P * 2^S) with Fref = 25 MHz, rounded to the
// nearest achievable integer MHz, matching the shape (not the literal
// silicon-specific constants) of the source's pll_sets table.
var Table = buildTable()

func buildTable() []PMS {
	steps := []int{24, 50, 75, 100, 125, 150, 175, 200, 225, 250, 275, 300,
		325, 350, 375, 400, 450, 500, 600, 700, 800, 900, 1000}
	out := make([]PMS, 0, len(steps))
	for _, f := range steps {
		p, m, s := dividersFor(f)
		out = append(out, PMS{
			FreqMHz: f,
			P:       p,
			M:       m,
			S:       s,
			Bypass:  0,
			DivSel:  0,
			AfcEnb:  1,
			ExtAFC:  0,
			FeedEn:  0,
			FSel:    0,
		})
	}
	return out
}

// dividersFor picks a (P, M, S) triplet such that
// refMHz * M / (P * 2^S) is close to target, with P in [1,63],
// M in [1,1023], S in [0,7] per the 6/10/3-bit field widths implied by
// the word layout's shift amounts (p<<26 leaves 6 bits below the top,
// m<<16 leaves 10 bits, s<<13 leaves 3 bits).
func dividersFor(targetMHz int) (p, m, s int) {
	p = 1
	s = 0
	bestDelta := -1
	for shift := 0; shift <= 7; shift++ {
		cand := targetMHz * p * (1 << uint(shift)) / refMHz
		if cand < 1 || cand > 1023 {
			continue
		}
		// compare in kHz so fractional outputs are not truncated away
		delta := abs(refMHz*1000*cand/(p<<uint(shift)) - targetMHz*1000)
		if bestDelta < 0 || delta < bestDelta {
			bestDelta, m, s = delta, cand, shift
		}
	}
	if bestDelta >= 0 {
		return
	}
	m = targetMHz * p / refMHz
	if m < 1 {
		m = 1
	}
	return
}

// Lookup returns the table entry for the requested frequency, clamping
// to MaxMHz above the ceiling and erroring below MinMHz.
func Lookup(mhz int) (PMS, error) {
	if mhz < MinMHz {
		return PMS{}, fmt.Errorf("pll: requested %d MHz below table minimum %d", mhz, MinMHz)
	}
	if mhz > MaxMHz {
		mhz = MaxMHz
	}
	best := Table[0]
	bestDelta := abs(best.FreqMHz - mhz)
	for _, e := range Table[1:] {
		d := abs(e.FreqMHz - mhz)
		if d < bestDelta {
			best, bestDelta = e, d
		}
	}
	return best, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// ConfigWord synthesizes the 32-bit SET_PLL_CONFIG payload:
// word = (p<<26)|(m<<16)|(s<<13)|(bypass<<12)|(div_sel<<11)|
//
//	(afc_enb<<10)|(extafc<<5)|(feed_en<<4)|(fsel<<3)
func ConfigWord(e PMS) uint32 {
	return uint32(e.P)<<26 |
		uint32(e.M)<<16 |
		uint32(e.S)<<13 |
		uint32(e.Bypass)<<12 |
		uint32(e.DivSel)<<11 |
		uint32(e.AfcEnb)<<10 |
		uint32(e.ExtAFC)<<5 |
		uint32(e.FeedEn)<<4 |
		uint32(e.FSel)<<3
}
