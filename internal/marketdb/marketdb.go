// Package marketdb is the Postgres-backed market registry: the
// (added) per-market static configuration row described in SPEC_FULL.md
// §3/§4 (multiplier table, phase durations, RTP targets) that lets an
// operator add or retune a market without a redeploy. It is read once
// at boot by the composition root, mirroring how the teacher's
// cache.Service is a single long-lived connection handed to every
// consumer.
package marketdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"plinkoengine/internal/config"
)

// MarketConfig is one row of the market registry: everything a
// market.Loop needs to run that is not shared process-wide defaults.
type MarketConfig struct {
	Market             string
	Multipliers        []float64
	StockCount         int
	BetTime            time.Duration
	DeltaTime          time.Duration
	DropTime           time.Duration
	PayoutTime         time.Duration
	DesiredRTP         float64
	ThresholdPlaycount int64
	LimitPlaycount     int64
	Enabled            bool
}

// Registry reads the market_configs table.
type Registry interface {
	ListEnabled(ctx context.Context) ([]MarketConfig, error)
	Get(ctx context.Context, market string) (*MarketConfig, error)
	Health(ctx context.Context) map[string]string
	Close()
}

type registry struct {
	pool *pgxpool.Pool
}

// New opens a pooled connection to the market registry database.
func New(ctx context.Context, cfg config.PostgresConfig) (Registry, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("marketdb: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("marketdb: ping: %w", err)
	}
	return &registry{pool: pool}, nil
}

const selectColumns = `market, multipliers, stock_count, bet_time_ms, delta_time_ms, drop_time_ms, payout_time_ms, desired_rtp, threshold_playcount, limit_playcount, enabled`

// ListEnabled returns every enabled market row, ordered by name for
// deterministic boot logging.
func (r *registry) ListEnabled(ctx context.Context) ([]MarketConfig, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+` FROM market_configs WHERE enabled ORDER BY market`)
	if err != nil {
		return nil, fmt.Errorf("marketdb: list enabled: %w", err)
	}
	defer rows.Close()

	var out []MarketConfig
	for rows.Next() {
		cfg, err := scanMarketConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// Get returns a single market's row, or nil if it is not registered.
func (r *registry) Get(ctx context.Context, market string) (*MarketConfig, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+` FROM market_configs WHERE market = $1`, market)
	if err != nil {
		return nil, fmt.Errorf("marketdb: get %s: %w", market, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	cfg, err := scanMarketConfig(rows)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanMarketConfig(row scannable) (MarketConfig, error) {
	var (
		cfg      MarketConfig
		multJSON []byte
		betMS    int64
		deltaMS  int64
		dropMS   int64
		payoutMS int64
	)
	if err := row.Scan(&cfg.Market, &multJSON, &cfg.StockCount, &betMS, &deltaMS, &dropMS, &payoutMS,
		&cfg.DesiredRTP, &cfg.ThresholdPlaycount, &cfg.LimitPlaycount, &cfg.Enabled); err != nil {
		return MarketConfig{}, fmt.Errorf("marketdb: scan row: %w", err)
	}
	if err := json.Unmarshal(multJSON, &cfg.Multipliers); err != nil {
		return MarketConfig{}, fmt.Errorf("marketdb: decode multipliers for %s: %w", cfg.Market, err)
	}
	cfg.BetTime = time.Duration(betMS) * time.Millisecond
	cfg.DeltaTime = time.Duration(deltaMS) * time.Millisecond
	cfg.DropTime = time.Duration(dropMS) * time.Millisecond
	cfg.PayoutTime = time.Duration(payoutMS) * time.Millisecond
	return cfg, nil
}

func (r *registry) Health(ctx context.Context) map[string]string {
	stats := make(map[string]string)
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := r.pool.Ping(pingCtx); err != nil {
		stats["status"] = "down"
		stats["error"] = err.Error()
		return stats
	}
	stats["status"] = "up"
	return stats
}

func (r *registry) Close() {
	r.pool.Close()
}
