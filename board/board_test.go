package board

import (
	"testing"

	"github.com/btc08io/btc08d/chain"
	"github.com/btc08io/btc08d/config"
	"github.com/btc08io/btc08d/transport"
)

func TestNewCapsChainsAtMaxChainsPerBoard(t *testing.T) {
	chains := make([]*chain.Chain, 0, MaxChainsPerBoard+1)
	for i := 0; i < MaxChainsPerBoard+1; i++ {
		chains = append(chains, chain.New(i, config.Options{}, transport.NewFakePort(), nil, nil, nil, nil))
	}
	b, err := New(0, chains...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if len(b.Chains) != MaxChainsPerBoard {
		t.Errorf("len(Chains) = %d, want %d (capped)", len(b.Chains), MaxChainsPerBoard)
	}
	if len(b.Ops) != MaxChainsPerBoard {
		t.Errorf("len(Ops) = %d, want %d", len(b.Ops), MaxChainsPerBoard)
	}
}

func TestStatsReturnsOneEntryPerChain(t *testing.T) {
	c0 := chain.New(0, config.Options{}, transport.NewFakePort(), nil, nil, nil, nil)
	c1 := chain.New(1, config.Options{}, transport.NewFakePort(), nil, nil, nil, nil)
	b, err := New(0, c0, c1)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	stats := b.Stats()
	if len(stats) != 2 {
		t.Fatalf("len(Stats()) = %d, want 2", len(stats))
	}
	if stats[0].ChainID != 0 || stats[1].ChainID != 1 {
		t.Errorf("stats chain ids = [%d, %d], want [0, 1]", stats[0].ChainID, stats[1].ChainID)
	}
}
