package market

import (
	"context"
	"log"
	"math/rand"
	"time"

	"plinkoengine/internal/domain"
	"plinkoengine/internal/rtp"
	"plinkoengine/internal/transport"
)

// enterBetting allocates a fresh round, selects the round's symbol
// basket from the latest snapshot, and opens betting. If no snapshot is
// available yet, it retries in 1s without allocating a round, per
// spec.md §4.5's BETTING-entry action.
func (l *Loop) enterBetting(ctx context.Context, now time.Time) error {
	snap, err := l.snapshots.GetSnapshot(ctx, l.market)
	if err != nil {
		log.Printf("[MARKET] %s snapshot unavailable, retrying: %v", l.market, err)
		l.scheduleTick(time.Second)
		return nil
	}
	if snap == nil || len(snap.Symbols) == 0 {
		log.Printf("[MARKET] %s no snapshot yet, retrying", l.market)
		l.scheduleTick(time.Second)
		return nil
	}

	symbols := pickRandomSymbols(snap.Symbols, l.cfg.StockCount, l.rng)
	roundID := l.newRoundID()

	if err := l.rounds.PutStocks(ctx, l.market, roundID, symbols); err != nil {
		log.Printf("[MARKET] %s persist stocks list: %v", l.market, err)
	}

	stocks := make([]domain.StockState, len(symbols))
	for i, sym := range symbols {
		price := snap.Symbols[sym]
		stocks[i] = domain.StockState{Symbol: sym, CurrentPrice: &price}
	}

	state := &domain.RoundState{
		Market:     l.market,
		Phase:      domain.PhaseBetting,
		RoundID:    roundID,
		ServerTime: now.UnixMilli(),
		EndTime:    now.Add(l.cfg.BetTime).UnixMilli(),
		Stocks:     stocks,
		CanUnbet:   true,
	}
	return l.commit(ctx, state)
}

// enterAccumulation freezes each stock's start price from a fresh
// snapshot and closes betting for the round.
func (l *Loop) enterAccumulation(ctx context.Context, now time.Time, prev *domain.RoundState) error {
	snap, err := l.snapshots.GetSnapshot(ctx, l.market)
	if err != nil {
		log.Printf("[MARKET] %s snapshot read at ACCUMULATION: %v", l.market, err)
	}
	if snap != nil {
		if err := l.rounds.PutStartSnapshot(ctx, l.market, prev.RoundID, snap); err != nil {
			log.Printf("[MARKET] %s persist start snapshot: %v", l.market, err)
		}
	}

	stocks := make([]domain.StockState, len(prev.Stocks))
	for i, stock := range prev.Stocks {
		stock.StartPrice = stock.CurrentPrice
		if snap != nil {
			if price, ok := snap.Symbols[stock.Symbol]; ok {
				stock.StartPrice = &price
			}
		}
		stocks[i] = stock
	}

	state := &domain.RoundState{
		Market:     l.market,
		Phase:      domain.PhaseAccumulation,
		RoundID:    prev.RoundID,
		ServerTime: now.UnixMilli(),
		EndTime:    now.Add(l.cfg.DeltaTime).UnixMilli(),
		Stocks:     stocks,
		CanUnbet:   false,
	}
	return l.commit(ctx, state)
}

// enterDropping computes each symbol's outcome from the start/end
// snapshot pair via the RTP decision engine and persists the results.
func (l *Loop) enterDropping(ctx context.Context, now time.Time, prev *domain.RoundState) error {
	endSnap, err := l.snapshots.GetSnapshot(ctx, l.market)
	if err != nil {
		log.Printf("[MARKET] %s snapshot read at DROPPING: %v", l.market, err)
	}
	startSnap, err := l.rounds.GetStartSnapshot(ctx, l.market, prev.RoundID)
	if err != nil {
		log.Printf("[MARKET] %s read start snapshot: %v", l.market, err)
	}
	if startSnap == nil {
		startSnap = endSnap
	}

	symbols := make([]string, len(prev.Stocks))
	deltas := make([]float64, len(prev.Stocks))
	endPrices := make(map[string]float64, len(prev.Stocks))

	for i, stock := range prev.Stocks {
		symbols[i] = stock.Symbol

		var start, end float64
		if startSnap != nil {
			start = startSnap.Symbols[stock.Symbol]
		} else if stock.StartPrice != nil {
			start = *stock.StartPrice
		}
		if endSnap != nil {
			end = endSnap.Symbols[stock.Symbol]
		} else if stock.CurrentPrice != nil {
			end = *stock.CurrentPrice
		}
		endPrices[stock.Symbol] = end
		deltas[i] = rtp.Delta(start, end)
	}

	metrics := l.rtpTrack.GetMetrics(ctx, l.market)
	results := l.engine.Decide(metrics, symbols, deltas)

	if err := l.rounds.PutResults(ctx, l.market, prev.RoundID, results); err != nil {
		log.Printf("[MARKET] %s persist results: %v", l.market, err)
	}

	resultBySymbol := make(map[string]domain.SymbolResult, len(results))
	for _, r := range results {
		resultBySymbol[r.Symbol] = r
	}

	stocks := make([]domain.StockState, len(prev.Stocks))
	for i, stock := range prev.Stocks {
		end := endPrices[stock.Symbol]
		stock.CurrentPrice = &end
		if r, ok := resultBySymbol[stock.Symbol]; ok {
			delta, mult, idx := r.Delta, r.Multiplier, r.MultiplierIndex
			stock.Delta = &delta
			stock.Multiplier = &mult
			stock.MultiplierIndex = &idx
		}
		stocks[i] = stock
	}

	state := &domain.RoundState{
		Market:     l.market,
		Phase:      domain.PhaseDropping,
		RoundID:    prev.RoundID,
		ServerTime: now.UnixMilli(),
		EndTime:    now.Add(l.cfg.DropTime).UnixMilli(),
		Stocks:     stocks,
		CanUnbet:   false,
	}
	return l.commit(ctx, state)
}

// enterPayout persists the PAYOUT phase transition and hands the round
// off to the payout pipeline as a detached task, per spec.md §4.5's
// requirement that it must not block the scheduler tick.
func (l *Loop) enterPayout(ctx context.Context, now time.Time, prev *domain.RoundState) error {
	state := &domain.RoundState{
		Market:     l.market,
		Phase:      domain.PhasePayout,
		RoundID:    prev.RoundID,
		ServerTime: now.UnixMilli(),
		EndTime:    now.Add(l.cfg.PayoutTime).UnixMilli(),
		Stocks:     prev.Stocks,
		CanUnbet:   false,
	}
	if err := l.commit(ctx, state); err != nil {
		return err
	}

	roundID := prev.RoundID
	go l.runPayout(context.Background(), roundID)
	return nil
}

// commit writes the new round state before broadcasting it, per spec.md
// §4.5's "step (b) must precede (c)" ordering guarantee, then arms the
// next tick.
func (l *Loop) commit(ctx context.Context, state *domain.RoundState) error {
	if err := l.rounds.PutState(ctx, state); err != nil {
		return err
	}
	l.hub.BroadcastRoom(transport.MarketRoom(l.market), transport.Event{
		Type: "game:state",
		Data: state,
	})
	l.scheduleNextTick(state)
	return nil
}

// pickRandomSymbols selects count distinct symbols from the snapshot's
// basket, uniform without replacement, capped at the basket size and
// never fewer than one.
func pickRandomSymbols(symbols map[string]float64, count int, rng *rand.Rand) []string {
	names := make([]string, 0, len(symbols))
	for sym := range symbols {
		names = append(names, sym)
	}
	rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })
	if count > len(names) {
		count = len(names)
	}
	if count < 1 {
		count = 1
	}
	return names[:count]
}
