// Package board groups the chains sharing one physical hash-board
// enclosure and one ADC/temperature sensor, per btc08-common.h's
// struct btc08_board (a detail the distilled spec omits but
// original_source carries, SPEC_FULL §3). It is a thin registry used
// only by the stats/report surface — protocol logic never goes through
// Board, each chain stays independently owned and mutexed.
package board

import "github.com/btc08io/btc08d/chain"

// MaxChainsPerBoard mirrors original_source's MAX_SPI_PORT (2): a
// board has at most two SPI bus/chip-select endpoints.
const MaxChainsPerBoard = 2

// Board is one physical enclosure's chain set plus its function-pointer
// tables.
type Board struct {
	ID     int
	Chains []*chain.Chain
	Ops    []chain.Ops
}

// New registers up to MaxChainsPerBoard chains under one board id.
func New(id int, chains ...*chain.Chain) (*Board, error) {
	if len(chains) > MaxChainsPerBoard {
		chains = chains[:MaxChainsPerBoard]
	}
	b := &Board{ID: id, Chains: chains}
	for _, c := range chains {
		b.Ops = append(b.Ops, chain.NewOps(c))
	}
	return b, nil
}

// Stats returns one Stats snapshot per chain on the board.
func (b *Board) Stats() []chain.Stats {
	out := make([]chain.Stats, len(b.Ops))
	for i, ops := range b.Ops {
		out[i] = ops.Stats()
	}
	return out
}
