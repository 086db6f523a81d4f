// Command plinkoengine is the composition root: it loads configuration,
// connects to Redis and the market registry, wires every package built
// under internal/ into one market.Loop per configured market, and
// serves the HTTP/WebSocket front door until terminated.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"plinkoengine/internal/cache"
	"plinkoengine/internal/config"
	"plinkoengine/internal/ledger"
	"plinkoengine/internal/market"
	"plinkoengine/internal/marketdb"
	"plinkoengine/internal/server"
	"plinkoengine/internal/session"
	"plinkoengine/internal/snapshot"
	"plinkoengine/internal/store"
	"plinkoengine/internal/transport"
	"plinkoengine/internal/walletapi"
)

const sessionKeyPrefix = "session:"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[BOOT] config: %v", err)
	}
	if len(cfg.Markets) == 0 {
		log.Fatal("[BOOT] no markets configured; set MARKETS")
	}

	redisSvc, err := cache.New(cfg.Redis)
	if err != nil {
		log.Fatalf("[BOOT] redis: %v", err)
	}
	rdb := redisSvc.GetClient()

	registry, err := marketdb.New(context.Background(), cfg.Postgres)
	if err != nil {
		log.Printf("[BOOT] market registry unavailable, falling back to process defaults for every market: %v", err)
		registry = nil
	}

	lease := store.NewLeaseManager(rdb)
	rounds := store.NewRoundStore(rdb)
	wagers := store.NewWagerStore(rdb)
	rtpTracker := store.NewRTPTracker(rdb, int64(cfg.RTP.LimitPlaycount))
	snapshots := snapshot.NewRedisProvider(rdb)
	wallet := walletapi.NewClient(cfg.Wallet)
	sessions := session.NewRedisStore(rdb, sessionKeyPrefix)
	hub := transport.NewHub()
	go hub.Run()

	wagerLedger := ledger.New(wagers, rounds, rtpTracker, wallet)

	instanceID := instanceIdentity()
	deps := market.Deps{
		Lease:     lease,
		Rounds:    rounds,
		Wagers:    wagers,
		RTP:       rtpTracker,
		Snapshots: snapshots,
		Wallet:    wallet,
		Hub:       hub,
	}

	loops := make([]*market.Loop, 0, len(cfg.Markets))
	for _, name := range cfg.Markets {
		plinkoCfg, desiredRTP, threshold, limitPlaycount := resolveMarketConfig(context.Background(), registry, name, cfg)
		_ = limitPlaycount // RTPTracker above is shared process-wide at cfg.RTP.LimitPlaycount; per-market override is a documented gap, see DESIGN.md.

		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		freshness := time.Duration(cfg.Snapshot.FreshnessSeconds) * time.Second

		loop := market.NewLoop(name, instanceID, plinkoCfg, desiredRTP, threshold, freshness, deps, rng)
		loop.Start()
		loops = append(loops, loop)
		log.Printf("[BOOT] market %s loop started (instance=%s)", name, instanceID)
	}

	srv := server.New(server.Deps{
		Markets:  cfg.Markets,
		Rounds:   rounds,
		Ledger:   wagerLedger,
		Sessions: sessions,
		Hub:      hub,
		Registry: registry,
	})

	go func() {
		log.Printf("[BOOT] listening on %s", cfg.Server.Addr)
		if err := srv.App.Listen(cfg.Server.Addr); err != nil {
			log.Printf("[BOOT] server stopped: %v", err)
		}
	}()

	waitForShutdown(loops, srv, registry, redisSvc)
}

// resolveMarketConfig prefers the market registry's row for name when
// one exists, falling back to the process-wide defaults from config.yaml
// / environment otherwise.
func resolveMarketConfig(ctx context.Context, registry marketdb.Registry, name string, cfg *config.Config) (plinkoCfg config.PlinkoConfig, desiredRTP float64, threshold int64, limitPlaycount int64) {
	plinkoCfg = cfg.Plinko
	desiredRTP = cfg.RTP.Desired
	threshold = int64(cfg.RTP.ThresholdPlays)
	limitPlaycount = int64(cfg.RTP.LimitPlaycount)

	if registry == nil {
		return
	}
	row, err := registry.Get(ctx, name)
	if err != nil {
		log.Printf("[BOOT] market registry lookup for %s failed, using defaults: %v", name, err)
		return
	}
	if row == nil {
		return
	}

	plinkoCfg = config.PlinkoConfig{
		Multipliers: row.Multipliers,
		StockCount:  row.StockCount,
		BetTime:     row.BetTime,
		DeltaTime:   row.DeltaTime,
		DropTime:    row.DropTime,
		PayoutTime:  row.PayoutTime,
	}
	desiredRTP = row.DesiredRTP
	threshold = row.ThresholdPlaycount
	limitPlaycount = row.LimitPlaycount
	return
}

func instanceIdentity() string {
	host, err := os.Hostname()
	if err != nil {
		host = "plinkoengine"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func waitForShutdown(loops []*market.Loop, srv *server.FiberServer, registry marketdb.Registry, redisSvc cache.Service) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("[BOOT] shutting down")
	for _, loop := range loops {
		loop.Stop()
	}
	if err := srv.App.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("[BOOT] server shutdown: %v", err)
	}
	if registry != nil {
		registry.Close()
	}
	if err := redisSvc.Close(); err != nil {
		log.Printf("[BOOT] redis close: %v", err)
	}
	log.Println("[BOOT] shutdown complete")
}
