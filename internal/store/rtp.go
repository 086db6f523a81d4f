package store

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"plinkoengine/internal/domain"
)

// RTPTracker maintains the durable per-market counters behind the RTP
// decision engine, per spec.md §4.3. Every operation swallows transient
// store errors after logging them: a telemetry glitch must never fail a
// round, matching the failure semantics the teacher applies to its own
// balance IncrByFloat calls.
type RTPTracker struct {
	rdb            *redis.Client
	limitPlaycount int64
}

// NewRTPTracker wraps a Redis client. limitPlaycount is the configured
// LIMIT_PLAYCOUNT at which counters auto-reset.
func NewRTPTracker(rdb *redis.Client, limitPlaycount int64) *RTPTracker {
	return &RTPTracker{rdb: rdb, limitPlaycount: limitPlaycount}
}

// RecordBet resets the counters if playCount has reached the configured
// limit, then atomically increments totalBet and playCount. The two
// increments are independently atomic (each is its own Redis command);
// spec.md §4.3 does not require them to be a single transaction.
func (t *RTPTracker) RecordBet(ctx context.Context, market string, amount decimal.Decimal) {
	key := rtpKey(market)

	playCount, err := t.rdb.HGet(ctx, key, "playCount").Int64()
	if err != nil && err != redis.Nil {
		log.Printf("[RTP] read playCount for %s: %v", market, err)
	}
	if playCount >= t.limitPlaycount && t.limitPlaycount > 0 {
		log.Printf("[RTP] %s reached limit playcount %d, resetting counters", market, t.limitPlaycount)
		if err := t.rdb.Del(ctx, key).Err(); err != nil {
			log.Printf("[RTP] reset %s: %v", market, err)
		}
	}

	amountF, _ := amount.Float64()
	if err := t.rdb.HIncrByFloat(ctx, key, "totalBet", amountF).Err(); err != nil {
		log.Printf("[RTP] increment totalBet for %s: %v", market, err)
	}
	if err := t.rdb.HIncrBy(ctx, key, "playCount", 1).Err(); err != nil {
		log.Printf("[RTP] increment playCount for %s: %v", market, err)
	}
}

// RecordWin atomically increments totalWon by amount.
func (t *RTPTracker) RecordWin(ctx context.Context, market string, amount decimal.Decimal) {
	amountF, _ := amount.Float64()
	if err := t.rdb.HIncrByFloat(ctx, rtpKey(market), "totalWon", amountF).Err(); err != nil {
		log.Printf("[RTP] increment totalWon for %s: %v", market, err)
	}
}

// GetMetrics reads the three counters and derives currentRTP.
func (t *RTPTracker) GetMetrics(ctx context.Context, market string) domain.RTPMetrics {
	vals, err := t.rdb.HMGet(ctx, rtpKey(market), "totalBet", "totalWon", "playCount").Result()
	if err != nil {
		log.Printf("[RTP] read metrics for %s: %v", market, err)
		return domain.RTPMetrics{}
	}

	totalBet := parseDecimal(vals[0])
	totalWon := parseDecimal(vals[1])
	playCount := parseInt(vals[2])

	metrics := domain.RTPMetrics{TotalBet: totalBet, TotalWon: totalWon, PlayCount: playCount}
	if totalBet.IsPositive() {
		metrics.CurrentRTP, _ = totalWon.Div(totalBet).Mul(decimal.NewFromInt(100)).Float64()
	}
	return metrics
}

// HasEnoughData reports whether playCount has reached the configured
// THRESHOLD_PLAYCOUNT for the RTP governor to activate.
func HasEnoughData(metrics domain.RTPMetrics, threshold int64) bool {
	return metrics.PlayCount >= threshold
}

// Reset deletes the market's RTP counters.
func (t *RTPTracker) Reset(ctx context.Context, market string) {
	if err := t.rdb.Del(ctx, rtpKey(market)).Err(); err != nil {
		log.Printf("[RTP] reset %s: %v", market, err)
	}
}

func parseDecimal(v interface{}) decimal.Decimal {
	s, ok := v.(string)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseInt(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.IntPart()
}
