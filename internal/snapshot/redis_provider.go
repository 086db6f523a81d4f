package snapshot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"plinkoengine/internal/domain"
)

// RedisProvider reads a snapshot published by the (external) market-data
// ingestion pipeline as a Redis hash: symbol fields holding price strings,
// plus a reserved "_captured_at" field holding a Unix-millisecond
// timestamp. This is the wire contract the out-of-scope ingester is
// expected to honor.
type RedisProvider struct {
	rdb *redis.Client
}

// NewRedisProvider wraps a Redis client.
func NewRedisProvider(rdb *redis.Client) *RedisProvider {
	return &RedisProvider{rdb: rdb}
}

func priceKey(market string) string {
	return fmt.Sprintf("plinko:price:%s", market)
}

// GetSnapshot returns nil, nil if no snapshot has ever been published for
// the market.
func (p *RedisProvider) GetSnapshot(ctx context.Context, market string) (*domain.Snapshot, error) {
	raw, err := p.rdb.HGetAll(ctx, priceKey(market)).Result()
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", market, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	snap := &domain.Snapshot{Symbols: make(map[string]float64, len(raw))}
	for field, val := range raw {
		if field == "_captured_at" {
			ms, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("snapshot: parse capturedAt for %s: %w", market, err)
			}
			snap.CapturedAt = time.UnixMilli(ms)
			continue
		}
		price, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("snapshot: parse price %s/%s: %w", market, field, err)
		}
		snap.Symbols[field] = price
	}
	return snap, nil
}
