// Package domain holds the data model shared by the store, RTP, market,
// and transport layers: round state, stocks, wagers, and RTP metrics.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Phase is a round's position in the BETTING -> ACCUMULATION -> DROPPING ->
// PAYOUT cycle, or PAUSED when the circuit breaker has tripped.
type Phase string

const (
	PhaseBetting      Phase = "BETTING"
	PhaseAccumulation Phase = "ACCUMULATION"
	PhaseDropping     Phase = "DROPPING"
	PhasePayout       Phase = "PAYOUT"
	PhasePaused       Phase = "PAUSED"
)

// StockState is one symbol's price/outcome fields within a round. Fields
// beyond Symbol/CurrentPrice are populated progressively as the round
// advances through ACCUMULATION (StartPrice) and DROPPING (Delta,
// MultiplierIndex, Multiplier).
type StockState struct {
	Symbol          string   `json:"symbol"`
	CurrentPrice    *float64 `json:"currentPrice,omitempty"`
	StartPrice      *float64 `json:"startPrice,omitempty"`
	Delta           *float64 `json:"delta,omitempty"`
	MultiplierIndex *int     `json:"multiplierIndex,omitempty"`
	Multiplier      *float64 `json:"multiplier,omitempty"`
}

// RoundState is the authoritative per-market blob described in spec.md §3.
// Every phase transition writes a complete new value; nothing is patched
// in place.
type RoundState struct {
	Market     string       `json:"market"`
	Phase      Phase        `json:"phase"`
	RoundID    string       `json:"roundId"`
	ServerTime int64        `json:"serverTime"`
	EndTime    int64        `json:"endTime"`
	Stocks     []StockState `json:"stocks"`
	CanUnbet   bool         `json:"canUnbet"`
	Message    string       `json:"message,omitempty"`
}

// Wager is a single player's stake on a basket of symbols within one round.
type Wager struct {
	TransactionID string          `json:"transactionId"`
	PlayerID      string          `json:"playerId"`
	TenantID      string          `json:"tenantId"`
	SessionToken  string          `json:"sessionToken"`
	Currency      string          `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	Symbols       []string        `json:"symbols"`
	PlacedAt      time.Time       `json:"placedAt"`
}

// SymbolResult is one symbol's drop outcome, persisted under the round's
// results key at DROPPING entry and consumed exactly once by the payout
// pipeline.
type SymbolResult struct {
	Symbol          string  `json:"symbol"`
	Delta           float64 `json:"delta"`
	MultiplierIndex int     `json:"multiplierIndex"`
	Multiplier      float64 `json:"multiplier"`
	Reason          string  `json:"reason"`
}

// RTPMetrics is the derived view over a market's durable RTP counters.
type RTPMetrics struct {
	TotalBet   decimal.Decimal
	TotalWon   decimal.Decimal
	PlayCount  int64
	CurrentRTP float64
}

// Snapshot is a market-data reading for a basket of symbols at a point in
// time, as produced by the (out-of-scope) ingestion pipeline.
type Snapshot struct {
	Symbols    map[string]float64
	CapturedAt time.Time
}
