package market

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"plinkoengine/internal/config"
	"plinkoengine/internal/domain"
	"plinkoengine/internal/store"
	"plinkoengine/internal/transport"
	"plinkoengine/internal/walletapi"
)

// fixedSnapshotProvider lets a test control exactly what price basket is
// returned, for deterministic start/end deltas.
type fixedSnapshotProvider struct {
	symbols map[string]float64
}

func (p *fixedSnapshotProvider) GetSnapshot(ctx context.Context, market string) (*domain.Snapshot, error) {
	return &domain.Snapshot{Symbols: p.symbols, CapturedAt: time.Now()}, nil
}

func dialTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable at localhost:6379: %v", err)
	}
	t.Cleanup(func() { rdb.FlushDB(context.Background()); rdb.Close() })
	return rdb
}

func walletGatewayRecordingCredits(t *testing.T, credits *[]walletapi.CreditRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/transactions/credit" {
			var req walletapi.CreditRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			*credits = append(*credits, req)
		}
		env := walletapi.TransactionEnvelope{
			Status: "OK",
			Data:   walletapi.TransactionResult{Status: "SUCCESS", NewBalance: decimal.NewFromInt(1000)},
		}
		_ = json.NewEncoder(w).Encode(env)
	}))
}

func newTestLoop(t *testing.T, rdb *redis.Client, provider *fixedSnapshotProvider, wallet *walletapi.Client) *Loop {
	t.Helper()
	deps := Deps{
		Lease:     store.NewLeaseManager(rdb),
		Rounds:    store.NewRoundStore(rdb),
		Wagers:    store.NewWagerStore(rdb),
		RTP:       store.NewRTPTracker(rdb, 10000),
		Snapshots: provider,
		Wallet:    wallet,
		Hub:       transport.NewHub(),
	}
	go deps.Hub.Run()

	cfg := config.PlinkoConfig{
		Multipliers: []float64{4, 2, 1.4, 0, 0.5, 0, 1.2, 1.5, 5},
		StockCount:  2,
		BetTime:     time.Minute,
		DeltaTime:   time.Minute,
		DropTime:    time.Minute,
		PayoutTime:  time.Minute,
	}
	return NewLoop("CryptoStream", "instance-1", cfg, 96.5, 100, 5*time.Second, deps, rand.New(rand.NewSource(1)))
}

// TestHappyPathRound drives spec.md §8 scenario 1 end to end: A rises,
// B falls, A's bet wins, B's bet pays zero.
func TestHappyPathRound(t *testing.T) {
	rdb := dialTestRedis(t)
	provider := &fixedSnapshotProvider{symbols: map[string]float64{"A": 100, "B": 200}}
	var credits []walletapi.CreditRequest
	srv := walletGatewayRecordingCredits(t, &credits)
	defer srv.Close()
	wallet := walletapi.NewClient(config.WalletConfig{BaseURL: srv.URL, Timeout: 2 * time.Second, SignatureSecret: "s"})

	l := newTestLoop(t, rdb, provider, wallet)
	ctx := context.Background()
	now := time.Now()

	if err := l.enterBetting(ctx, now); err != nil {
		t.Fatalf("enterBetting: %v", err)
	}
	state, err := l.rounds.GetState(ctx, l.market)
	if err != nil || state == nil {
		t.Fatalf("GetState after enterBetting: %v", err)
	}
	roundID := state.RoundID

	if err := l.wagers.AppendWager(ctx, l.market, roundID, domain.Wager{
		TransactionID: "tx-a", PlayerID: "p1", TenantID: "t1", SessionToken: "sess-1",
		Currency: "USD", Amount: decimal.NewFromInt(100), Symbols: []string{"A", "B"},
	}); err != nil {
		t.Fatalf("AppendWager: %v", err)
	}

	if err := l.enterAccumulation(ctx, now, state); err != nil {
		t.Fatalf("enterAccumulation: %v", err)
	}

	provider.symbols = map[string]float64{"A": 100.45, "B": 199.80}
	state, err = l.rounds.GetState(ctx, l.market)
	if err != nil {
		t.Fatalf("GetState before dropping: %v", err)
	}
	if err := l.enterDropping(ctx, now, state); err != nil {
		t.Fatalf("enterDropping: %v", err)
	}

	results, err := l.rounds.GetResults(ctx, l.market, roundID)
	if err != nil || len(results) != 2 {
		t.Fatalf("GetResults: %v (%d results)", err, len(results))
	}
	for _, r := range results {
		if r.Symbol == "A" && r.Multiplier == 0 {
			t.Fatalf("A (delta>0) must not land on a zero multiplier")
		}
		if r.Symbol == "B" && r.Multiplier != 0 {
			t.Fatalf("B (delta<0) must land on a zero multiplier, got %v", r.Multiplier)
		}
	}

	l.runPayout(ctx, roundID)

	found := false
	for _, c := range credits {
		if c.Type == walletapi.CreditTypeWin && c.PlayerID == "p1" {
			found = true
			if !c.WinAmount.Equal(decimal.NewFromInt(200)) {
				t.Fatalf("win amount = %s, want 200 (A landed on 4x via seeded rng)", c.WinAmount)
			}
		}
	}
	if !found {
		t.Fatalf("expected a win credit for player p1")
	}

	all, err := l.wagers.AllWagers(ctx, l.market, roundID)
	if err != nil {
		t.Fatalf("AllWagers after payout: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected wager hash cleared after payout, got %d entries", len(all))
	}
}

// TestCircuitBreaker_RefundsAndPauses drives spec.md §8 scenario 6: a
// stale snapshot during BETTING must refund the live wager and pause
// the market.
func TestCircuitBreaker_RefundsAndPauses(t *testing.T) {
	rdb := dialTestRedis(t)
	provider := &fixedSnapshotProvider{symbols: map[string]float64{"A": 100, "B": 200}}
	var credits []walletapi.CreditRequest
	srv := walletGatewayRecordingCredits(t, &credits)
	defer srv.Close()
	wallet := walletapi.NewClient(config.WalletConfig{BaseURL: srv.URL, Timeout: 2 * time.Second, SignatureSecret: "s"})

	l := newTestLoop(t, rdb, provider, wallet)
	ctx := context.Background()
	now := time.Now()

	if err := l.enterBetting(ctx, now); err != nil {
		t.Fatalf("enterBetting: %v", err)
	}
	state, _ := l.rounds.GetState(ctx, l.market)
	roundID := state.RoundID

	if err := l.wagers.AppendWager(ctx, l.market, roundID, domain.Wager{
		TransactionID: "tx-b", PlayerID: "p2", TenantID: "t1", SessionToken: "sess-2",
		Currency: "USD", Amount: decimal.NewFromInt(40), Symbols: []string{"A"},
	}); err != nil {
		t.Fatalf("AppendWager: %v", err)
	}

	l.handleUnhealthy(ctx)

	state, err := l.rounds.GetState(ctx, l.market)
	if err != nil || state == nil {
		t.Fatalf("GetState after handleUnhealthy: %v", err)
	}
	if state.Phase != domain.PhasePaused {
		t.Fatalf("phase = %s, want PAUSED", state.Phase)
	}

	refunded := false
	for _, c := range credits {
		if c.Type == walletapi.CreditTypeRefund && c.PlayerID == "p2" && c.WinAmount.Equal(decimal.NewFromInt(40)) {
			refunded = true
		}
	}
	if !refunded {
		t.Fatalf("expected a refund credit of 40 for player p2")
	}

	all, err := l.wagers.AllWagers(ctx, l.market, roundID)
	if err != nil || len(all) != 0 {
		t.Fatalf("expected wager hash cleared after refund, got %d entries (err=%v)", len(all), err)
	}
}
