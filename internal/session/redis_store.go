package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// RedisStore reads session records published by the (out-of-scope) auth
// service as a JSON value under an opaque key.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore wraps a Redis client. prefix is prepended to every
// session token before the GET, matching the auth service's key layout.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

type sessionRecord struct {
	PlayerID string `json:"playerId"`
	TenantID string `json:"tenantId"`
	Currency string `json:"currency"`
}

const defaultCurrency = "USD"

// Lookup implements Store.
func (s *RedisStore) Lookup(ctx context.Context, sessionToken string) (string, string, string, bool) {
	raw, err := s.rdb.Get(ctx, s.prefix+sessionToken).Result()
	if err == redis.Nil {
		return "", "", "", false
	}
	if err != nil {
		log.Printf("[SESSION] lookup failed: %v", err)
		return "", "", "", false
	}

	var rec sessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		log.Printf("[SESSION] decode failed: %v", fmt.Errorf("session: decode %s: %w", sessionToken, err))
		return "", "", "", false
	}
	currency := rec.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	return rec.PlayerID, rec.TenantID, currency, true
}
