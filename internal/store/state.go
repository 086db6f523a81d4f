// Package store implements the shared-state-store primitives from
// spec.md §4.1-§4.6: round state, ancillary round keys, the distributed
// lease, RTP counters, and the atomic wager ledger scripts. Everything
// here is a thin, atomic layer over Redis; round-scheduling and payout
// business logic live in package market.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"plinkoengine/internal/domain"
)

// RoundStore reads and writes the authoritative round-state blob and its
// ancillary per-round keys (stocks, start snapshot, results).
type RoundStore struct {
	rdb *redis.Client
}

// NewRoundStore wraps a Redis client.
func NewRoundStore(rdb *redis.Client) *RoundStore {
	return &RoundStore{rdb: rdb}
}

// GetState returns the market's current round state, or nil if none has
// ever been written (the scheduler treats that as "enter BETTING").
func (s *RoundStore) GetState(ctx context.Context, market string) (*domain.RoundState, error) {
	raw, err := s.rdb.Get(ctx, stateKey(market)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get state: %w", err)
	}
	var state domain.RoundState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("store: decode state: %w", err)
	}
	return &state, nil
}

// PutState persists a complete new round-state blob. Callers must call
// this before broadcasting, per spec.md §4.5's ordering guarantee.
func (s *RoundStore) PutState(ctx context.Context, state *domain.RoundState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("store: encode state: %w", err)
	}
	if err := s.rdb.Set(ctx, stateKey(state.Market), raw, 0).Err(); err != nil {
		return fmt.Errorf("store: put state: %w", err)
	}
	return nil
}

// PutStocks persists the round's selected symbol list with a short TTL.
func (s *RoundStore) PutStocks(ctx context.Context, market, roundID string, symbols []string) error {
	raw, _ := json.Marshal(symbols)
	return s.rdb.Set(ctx, stocksKey(market, roundID), raw, ancillaryTTLSeconds*time.Second).Err()
}

// PutStartSnapshot persists the ACCUMULATION-entry snapshot under the round key.
func (s *RoundStore) PutStartSnapshot(ctx context.Context, market, roundID string, snap *domain.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: encode start snapshot: %w", err)
	}
	return s.rdb.Set(ctx, startSnapKey(market, roundID), raw, ancillaryTTLSeconds*time.Second).Err()
}

// GetStartSnapshot reads the ACCUMULATION-entry snapshot, or nil if absent
// (the DROPPING-entry action falls back to the end snapshot in that case).
func (s *RoundStore) GetStartSnapshot(ctx context.Context, market, roundID string) (*domain.Snapshot, error) {
	raw, err := s.rdb.Get(ctx, startSnapKey(market, roundID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get start snapshot: %w", err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("store: decode start snapshot: %w", err)
	}
	return &snap, nil
}

// PutResults persists the per-symbol outcome array computed at DROPPING entry.
func (s *RoundStore) PutResults(ctx context.Context, market, roundID string, results []domain.SymbolResult) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("store: encode results: %w", err)
	}
	return s.rdb.Set(ctx, resultsKey(market, roundID), raw, ancillaryTTLSeconds*time.Second).Err()
}

// GetResults reads the round's results array, or nil if it was never
// written (or has already expired).
func (s *RoundStore) GetResults(ctx context.Context, market, roundID string) ([]domain.SymbolResult, error) {
	raw, err := s.rdb.Get(ctx, resultsKey(market, roundID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get results: %w", err)
	}
	var results []domain.SymbolResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("store: decode results: %w", err)
	}
	return results, nil
}

// DeleteResults removes the results key, part of PAYOUT cleanup.
func (s *RoundStore) DeleteResults(ctx context.Context, market, roundID string) error {
	return s.rdb.Del(ctx, resultsKey(market, roundID)).Err()
}
