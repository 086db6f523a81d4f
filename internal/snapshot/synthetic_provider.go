package snapshot

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"plinkoengine/internal/domain"
)

// SyntheticProvider generates a deterministic random-walk basket of prices
// for local runs and tests where no real market-data feed is wired up. It
// is seeded by an injected rand.Rand, following spec.md §9's requirement
// that randomness be injectable for determinism in tests.
type SyntheticProvider struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]map[string]float64 // market -> symbol -> price
	now    func() time.Time
}

// NewSyntheticProvider seeds every symbol in universe at 100.0 for each
// listed market.
func NewSyntheticProvider(rng *rand.Rand, universe map[string][]string) *SyntheticProvider {
	prices := make(map[string]map[string]float64, len(universe))
	for market, symbols := range universe {
		m := make(map[string]float64, len(symbols))
		for _, sym := range symbols {
			m[sym] = 100.0
		}
		prices[market] = m
	}
	return &SyntheticProvider{rng: rng, prices: prices, now: time.Now}
}

// GetSnapshot applies one tick of +/-0.5% jitter per symbol and returns
// the resulting snapshot.
func (p *SyntheticProvider) GetSnapshot(ctx context.Context, market string) (*domain.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	symbols, ok := p.prices[market]
	if !ok {
		return nil, nil
	}

	out := make(map[string]float64, len(symbols))
	for sym, price := range symbols {
		jitter := (p.rng.Float64() - 0.5) * 0.01
		price = price * (1 + jitter)
		symbols[sym] = price
		out[sym] = price
	}

	return &domain.Snapshot{Symbols: out, CapturedAt: p.now()}, nil
}
