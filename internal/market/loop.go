// Package market implements the per-market round scheduler (spec.md
// §4.5), its payout pipeline (§4.7), and its circuit breaker and refund
// logic (§4.8). Each Loop is the single writer for one market's
// authoritative round state while it holds that market's lease.
package market

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"plinkoengine/internal/config"
	"plinkoengine/internal/domain"
	rtpengine "plinkoengine/internal/rtp"
	"plinkoengine/internal/snapshot"
	"plinkoengine/internal/store"
	"plinkoengine/internal/transport"
	"plinkoengine/internal/walletapi"
)

const (
	leaseTTL          = 10 * time.Second
	notLeaderRetry    = 5 * time.Second
	unhealthyRetry    = 2 * time.Second
	errorRetry        = 5 * time.Second
	tickGranularity   = time.Second
	payoutConcurrency = 16
)

// Loop drives one market's BETTING -> ACCUMULATION -> DROPPING -> PAYOUT
// cycle, grounded on the tick-driven restructuring of the teacher's
// Manager.gameLoop/runRound demanded by spec.md §4.5 (a single re-armed
// timer instead of a duration-blocking loop).
type Loop struct {
	market     string
	instanceID string
	cfg        config.PlinkoConfig
	desiredRTP float64
	threshold  int64
	freshness  time.Duration

	lease     *store.LeaseManager
	rounds    *store.RoundStore
	wagers    *store.WagerStore
	rtpTrack  *store.RTPTracker
	snapshots snapshot.Provider
	wallet    *walletapi.Client
	hub       *transport.Hub
	engine    *rtpengine.Engine

	rng *rand.Rand

	mu           sync.Mutex
	timer        *time.Timer
	stopped      bool
	roundCounter int64
}

// Deps bundles Loop's collaborators, built once by the composition root
// and shared (except the engine, which is market-specific) across every
// market's Loop.
type Deps struct {
	Lease     *store.LeaseManager
	Rounds    *store.RoundStore
	Wagers    *store.WagerStore
	RTP       *store.RTPTracker
	Snapshots snapshot.Provider
	Wallet    *walletapi.Client
	Hub       *transport.Hub
}

// NewLoop builds a Loop for one market. instanceID identifies this
// process for lease ownership and round-id generation; rng seeds both
// symbol selection and (via the RTP engine) multiplier-slot selection.
func NewLoop(market, instanceID string, cfg config.PlinkoConfig, desiredRTP float64, thresholdPlaycount int64, freshness time.Duration, deps Deps, rng *rand.Rand) *Loop {
	return &Loop{
		market:     market,
		instanceID: instanceID,
		cfg:        cfg,
		desiredRTP: desiredRTP,
		threshold:  thresholdPlaycount,
		freshness:  freshness,
		lease:      deps.Lease,
		rounds:     deps.Rounds,
		wagers:     deps.Wagers,
		rtpTrack:   deps.RTP,
		snapshots:  deps.Snapshots,
		wallet:     deps.Wallet,
		hub:        deps.Hub,
		engine:     rtpengine.NewEngine(cfg.Multipliers, thresholdPlaycount, desiredRTP, rng),
		rng:        rng,
	}
}

// Start arms the first tick immediately.
func (l *Loop) Start() {
	l.scheduleTick(0)
}

// Stop cancels the pending tick and releases the lease if held, so the
// next leader does not have to wait out the full TTL.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	if l.timer != nil {
		l.timer.Stop()
	}
	l.mu.Unlock()

	if err := l.lease.Release(context.Background(), l.market, l.instanceID); err != nil {
		log.Printf("[MARKET] %s release lease: %v", l.market, err)
	}
}

// scheduleTick arms exactly one pending tick for this market, canceling
// any prior one, per spec.md §4.5's tick-scheduling rule.
func (l *Loop) scheduleTick(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(d, l.tick)
}

// tick is the leader loop from spec.md §4.5: acquire/extend the lease,
// run the health check, then run the state-machine tick. Any panic or
// error is caught, logged, and causes a 5s reschedule.
func (l *Loop) tick() {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[MARKET] %s tick panic: %v", l.market, r)
			l.scheduleTick(errorRetry)
		}
	}()

	if !l.lease.AcquireOrExtend(ctx, l.market, l.instanceID, leaseTTL) {
		l.scheduleTick(notLeaderRetry)
		return
	}

	if !l.isHealthy(ctx) {
		l.handleUnhealthy(ctx)
		l.scheduleTick(unhealthyRetry)
		return
	}

	if err := l.runTick(ctx); err != nil {
		log.Printf("[MARKET] %s tick error: %v", l.market, err)
		l.scheduleTick(errorRetry)
	}
}

// isHealthy implements the health check from spec.md §4.8: a snapshot
// must exist and be within the configured freshness window.
func (l *Loop) isHealthy(ctx context.Context) bool {
	snap, err := l.snapshots.GetSnapshot(ctx, l.market)
	if err != nil {
		log.Printf("[MARKET] %s snapshot read failed: %v", l.market, err)
		return false
	}
	return snapshot.IsFresh(snap, l.freshness, time.Now())
}

// runTick loads the current round state and either enters BETTING (no
// state yet, or recovering from PAUSED), reschedules (phase not yet
// elapsed), or transitions to the next phase.
func (l *Loop) runTick(ctx context.Context) error {
	state, err := l.rounds.GetState(ctx, l.market)
	if err != nil {
		return fmt.Errorf("load round state: %w", err)
	}

	now := time.Now()

	switch {
	case state == nil:
		return l.enterBetting(ctx, now)

	case state.Phase == domain.PhasePaused:
		l.hub.BroadcastRoom(transport.MarketRoom(l.market), transport.Event{
			Type: "market-status",
			Data: map[string]interface{}{"status": "OPEN"},
		})
		return l.enterBetting(ctx, now)

	case now.UnixMilli() < state.EndTime:
		delay := time.Duration(state.EndTime-now.UnixMilli()) * time.Millisecond
		if delay > tickGranularity {
			delay = tickGranularity
		}
		if delay < 0 {
			delay = 0
		}
		l.scheduleTick(delay)
		return nil

	default:
		return l.transition(ctx, now, state)
	}
}

// transition dispatches to the next phase's entry action per spec.md
// §4.5's BETTING -> ACCUMULATION -> DROPPING -> PAYOUT -> BETTING cycle.
func (l *Loop) transition(ctx context.Context, now time.Time, state *domain.RoundState) error {
	switch state.Phase {
	case domain.PhaseBetting:
		return l.enterAccumulation(ctx, now, state)
	case domain.PhaseAccumulation:
		return l.enterDropping(ctx, now, state)
	case domain.PhaseDropping:
		return l.enterPayout(ctx, now, state)
	case domain.PhasePayout:
		return l.enterBetting(ctx, now)
	default:
		return l.enterBetting(ctx, now)
	}
}

// newRoundID generates a round identifier unique within this process's
// lifetime, monotonically increasing per spec.md §3.
func (l *Loop) newRoundID() string {
	n := atomic.AddInt64(&l.roundCounter, 1)
	return fmt.Sprintf("%s-%d", l.instanceID, n)
}

// scheduleNextTick arms the next tick at min(endTime-now, 1s), the
// generic cadence every phase-entry action ends with.
func (l *Loop) scheduleNextTick(state *domain.RoundState) {
	now := time.Now().UnixMilli()
	delay := time.Duration(state.EndTime-now) * time.Millisecond
	if delay > tickGranularity {
		delay = tickGranularity
	}
	if delay < 0 {
		delay = 0
	}
	l.scheduleTick(delay)
}
