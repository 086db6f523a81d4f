package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"plinkoengine/internal/domain"
)

func TestWagerStore_AppendAllRemove(t *testing.T) {
	rdb := dialTestRedis(t)
	ws := NewWagerStore(rdb)
	ctx := context.Background()

	w1 := domain.Wager{
		TransactionID: "tx-1",
		PlayerID:      "p1",
		Amount:        decimal.NewFromInt(100),
		Symbols:       []string{"A", "B"},
		PlacedAt:      time.Now(),
	}
	w2 := domain.Wager{
		TransactionID: "tx-2",
		PlayerID:      "p1",
		Amount:        decimal.NewFromInt(50),
		Symbols:       []string{"A"},
		PlacedAt:      time.Now(),
	}
	if err := ws.AppendWager(ctx, "CryptoStream", "r-1", w1); err != nil {
		t.Fatalf("append w1: %v", err)
	}
	if err := ws.AppendWager(ctx, "CryptoStream", "r-1", w2); err != nil {
		t.Fatalf("append w2: %v", err)
	}

	all, err := ws.AllWagers(ctx, "CryptoStream", "r-1")
	if err != nil {
		t.Fatalf("all wagers: %v", err)
	}
	if len(all["p1"]) != 2 {
		t.Fatalf("player p1 should have 2 wagers, got %d", len(all["p1"]))
	}

	removed, err := ws.RemoveWager(ctx, "CryptoStream", "r-1", "p1", "tx-1")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed == nil || !removed.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("removed wager mismatch: %+v", removed)
	}

	all, err = ws.AllWagers(ctx, "CryptoStream", "r-1")
	if err != nil {
		t.Fatalf("all wagers after remove: %v", err)
	}
	if len(all["p1"]) != 1 || all["p1"][0].TransactionID != "tx-2" {
		t.Fatalf("expected only tx-2 to remain, got %+v", all["p1"])
	}

	removed, err = ws.RemoveWager(ctx, "CryptoStream", "r-1", "p1", "tx-2")
	if err != nil {
		t.Fatalf("remove tx-2: %v", err)
	}
	if removed == nil {
		t.Fatal("removed tx-2 should not be nil")
	}

	all, err = ws.AllWagers(ctx, "CryptoStream", "r-1")
	if err != nil {
		t.Fatalf("all wagers after draining: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("hash should be empty once the last wager is removed, got %+v", all)
	}
}

func TestWagerStore_RemoveUnknownTransaction(t *testing.T) {
	rdb := dialTestRedis(t)
	ws := NewWagerStore(rdb)
	ctx := context.Background()

	if err := ws.AppendWager(ctx, "CryptoStream", "r-1", domain.Wager{
		TransactionID: "tx-1", PlayerID: "p1", Amount: decimal.NewFromInt(10), Symbols: []string{"A"},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	removed, err := ws.RemoveWager(ctx, "CryptoStream", "r-1", "p1", "does-not-exist")
	if err != nil {
		t.Fatalf("remove unknown: %v", err)
	}
	if removed != nil {
		t.Fatalf("removing an unknown transactionId should return nil, got %+v", removed)
	}
}

func TestWagerStore_DeleteWagers(t *testing.T) {
	rdb := dialTestRedis(t)
	ws := NewWagerStore(rdb)
	ctx := context.Background()

	if err := ws.AppendWager(ctx, "CryptoStream", "r-1", domain.Wager{
		TransactionID: "tx-1", PlayerID: "p1", Amount: decimal.NewFromInt(10), Symbols: []string{"A"},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := ws.DeleteWagers(ctx, "CryptoStream", "r-1"); err != nil {
		t.Fatalf("delete wagers: %v", err)
	}

	all, err := ws.AllWagers(ctx, "CryptoStream", "r-1")
	if err != nil {
		t.Fatalf("all wagers: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty hash after delete, got %+v", all)
	}
}
