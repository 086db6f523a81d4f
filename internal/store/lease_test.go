package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func dialTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable at localhost:6379: %v", err)
	}
	t.Cleanup(func() { rdb.FlushDB(context.Background()); rdb.Close() })
	return rdb
}

func TestLeaseManager_AcquireExtendAndContest(t *testing.T) {
	rdb := dialTestRedis(t)
	lm := NewLeaseManager(rdb)
	ctx := context.Background()

	if !lm.AcquireOrExtend(ctx, "CryptoStream", "instance-a", 5*time.Second) {
		t.Fatal("first acquire should succeed")
	}
	if !lm.AcquireOrExtend(ctx, "CryptoStream", "instance-a", 5*time.Second) {
		t.Fatal("re-extend by the same holder should succeed")
	}
	if lm.AcquireOrExtend(ctx, "CryptoStream", "instance-b", 5*time.Second) {
		t.Fatal("a different holder must not be able to claim a live lease")
	}
}

func TestLeaseManager_ReleaseOnlyByHolder(t *testing.T) {
	rdb := dialTestRedis(t)
	lm := NewLeaseManager(rdb)
	ctx := context.Background()

	if !lm.AcquireOrExtend(ctx, "CryptoStream", "instance-a", 5*time.Second) {
		t.Fatal("acquire should succeed")
	}

	if err := lm.Release(ctx, "CryptoStream", "instance-b"); err != nil {
		t.Fatalf("release by non-holder should be a no-op, got error: %v", err)
	}
	if lm.AcquireOrExtend(ctx, "CryptoStream", "instance-b", 5*time.Second) {
		t.Fatal("lease must still belong to instance-a after a non-holder release attempt")
	}

	if err := lm.Release(ctx, "CryptoStream", "instance-a"); err != nil {
		t.Fatalf("release by holder: %v", err)
	}
	if !lm.AcquireOrExtend(ctx, "CryptoStream", "instance-b", 5*time.Second) {
		t.Fatal("lease should be free for a new holder after release")
	}
}
