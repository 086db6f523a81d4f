package rtp

import (
	"math"
	"math/rand"

	"plinkoengine/internal/domain"
)

// Engine is the RTP decision engine: decide(M, deltas[]) -> decision[]
// from spec.md §4.4. It is constructed once per market with that
// market's multiplier table and governance thresholds, and is safe for
// concurrent use only insofar as its injected *rand.Rand is (the round
// scheduler calls it from a single goroutine per market, so an
// unsynchronized *rand.Rand is sufficient).
type Engine struct {
	table          *Table
	thresholdPlays int64
	desiredRTP     float64
	rng            *rand.Rand
}

// NewEngine builds a decision engine for one market's configuration.
func NewEngine(multipliers []float64, thresholdPlays int64, desiredRTP float64, rng *rand.Rand) *Engine {
	return &Engine{
		table:          NewTable(multipliers),
		thresholdPlays: thresholdPlays,
		desiredRTP:     desiredRTP,
		rng:            rng,
	}
}

// Delta computes the rounded percentage price delta spec.md §4.4
// defines for the scheduler to feed into Decide: (end-start)/start*100,
// rounded to 3 decimals, or 0 when start <= 0.
func Delta(start, end float64) float64 {
	if start <= 0 {
		return 0
	}
	d := (end - start) / start * 100
	return math.Round(d*1000) / 1000
}

// symbolInput is one symbol's delta paired with its name, for Decide.
type symbolInput struct {
	Symbol string
	Delta  float64
}

// Decide selects a multiplier-slot index per symbol given each symbol's
// price delta and the market's current RTP metrics, per the selection
// table in spec.md §4.4.
func (e *Engine) Decide(metrics domain.RTPMetrics, symbols []string, deltas []float64) []domain.SymbolResult {
	results := make([]domain.SymbolResult, len(symbols))
	belowThreshold := metrics.PlayCount < e.thresholdPlays

	for i, symbol := range symbols {
		delta := deltas[i]
		zone, subset, reason := e.classify(delta, belowThreshold, metrics.CurrentRTP)
		indices := e.table.indices(zone, subset)
		index := indices[e.rng.Intn(len(indices))]

		results[i] = domain.SymbolResult{
			Symbol:          symbol,
			Delta:           delta,
			MultiplierIndex: index,
			Multiplier:      e.table.Multiplier(index),
			Reason:          reason,
		}
	}
	return results
}

// classify applies spec.md §4.4's selection table for a single symbol.
func (e *Engine) classify(delta float64, belowThreshold bool, currentRTP float64) (Zone, string, string) {
	switch {
	case delta < 0:
		return ZoneRed, "", "delta<0:red"
	case delta == 0:
		return e.zoneForNonWinning(belowThreshold, currentRTP, ZoneYellow, "yellow")
	default:
		return e.zoneForNonWinning(belowThreshold, currentRTP, ZoneGreen, "green")
	}
}

// zoneForNonWinning implements the shared playCount/RTP branching used
// by both the YELLOW (delta == 0) and GREEN (delta > 0) rows of the
// selection table: below the play-count threshold the zone is uniform;
// above it, RTP below desired biases to the high subset (pay more) and
// RTP above desired biases to the low subset (pay less). RTP exactly
// equal to desired is treated as the below-threshold case per spec.md
// §4.4's tie rule.
func (e *Engine) zoneForNonWinning(belowThreshold bool, currentRTP float64, zone Zone, tag string) (Zone, string, string) {
	if belowThreshold || currentRTP == e.desiredRTP {
		return zone, "", tag + ":uniform"
	}
	if currentRTP < e.desiredRTP {
		return zone, "high", tag + ":high"
	}
	return zone, "low", tag + ":low"
}
