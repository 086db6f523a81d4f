package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireOrExtendScript implements spec.md §4.1's compare-and-set lease
// primitive: succeed if the key is unset (claim it) or already held by
// this holder (extend it); fail if another holder owns it.
//
// KEYS[1] = lease key, ARGV[1] = holder, ARGV[2] = ttl in milliseconds.
var acquireOrExtendScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false or current == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

// LeaseManager grants exclusive per-market writer rights, per spec.md §4.1.
// Grounded on the acquire/CAS-renew/revoke-on-mismatch shape of the pack's
// generic lease orchestrator, specialized onto a single Redis script
// instead of a pluggable KeyValueStore.
type LeaseManager struct {
	rdb *redis.Client
}

// NewLeaseManager wraps a Redis client.
func NewLeaseManager(rdb *redis.Client) *LeaseManager {
	return &LeaseManager{rdb: rdb}
}

// AcquireOrExtend returns true iff holder currently holds (or just claimed)
// the market's lease. A store communication failure is treated as "not
// leader", per spec.md §4.1.
func (l *LeaseManager) AcquireOrExtend(ctx context.Context, market, holder string, ttl time.Duration) bool {
	res, err := acquireOrExtendScript.Run(ctx, l.rdb, []string{leaseKey(market)}, holder, ttl.Milliseconds()).Int()
	if err != nil {
		return false
	}
	return res == 1
}

// Release drops the lease immediately if still held by holder, so a
// gracefully shutting-down instance does not force the next leader to wait
// out the full TTL.
func (l *LeaseManager) Release(ctx context.Context, market, holder string) error {
	current, err := l.rdb.Get(ctx, leaseKey(market)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: release lease: %w", err)
	}
	if current != holder {
		return nil
	}
	return l.rdb.Del(ctx, leaseKey(market)).Err()
}
