package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"plinkoengine/internal/domain"
)

// appendWagerScript performs the atomic read-modify-write append spec.md
// §9 calls for: decode the player's existing wager list (if any), append
// the new wager, and write the whole list back in one round-trip so two
// concurrent placeBet calls for the same player can never clobber each
// other. Redis's Lua runtime ships cjson, so the list never leaves the
// server as anything but a single HSET.
//
// KEYS[1] = bets hash key, ARGV[1] = player id, ARGV[2] = wager JSON,
// ARGV[3] = hash TTL in seconds.
var appendWagerScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], ARGV[1])
local list
if current then
	list = cjson.decode(current)
else
	list = {}
end
table.insert(list, cjson.decode(ARGV[2]))
redis.call("HSET", KEYS[1], ARGV[1], cjson.encode(list))
redis.call("EXPIRE", KEYS[1], ARGV[3])
return 1
`)

// removeWagerScript performs the atomic cancel-bet read-modify-write:
// locate the wager by transactionId, drop it from the list, and delete
// the player's field entirely if the list becomes empty. Returns the
// removed wager's JSON, or a false boolean if no such transaction exists.
//
// KEYS[1] = bets hash key, ARGV[1] = player id, ARGV[2] = transactionId.
var removeWagerScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], ARGV[1])
if not current then
	return false
end
local list = cjson.decode(current)
local removed = nil
local kept = {}
for i, w in ipairs(list) do
	if w.transactionId == ARGV[2] then
		removed = w
	else
		table.insert(kept, w)
	end
end
if removed == nil then
	return false
end
if #kept == 0 then
	redis.call("HDEL", KEYS[1], ARGV[1])
else
	redis.call("HSET", KEYS[1], ARGV[1], cjson.encode(kept))
end
return cjson.encode(removed)
`)

// WagerStore is the round-scoped wager ledger from spec.md §4.6: a
// hashmap keyed by playerId whose value is that player's wager list for
// the round, mutated only through the two scripts above.
type WagerStore struct {
	rdb *redis.Client
}

// NewWagerStore wraps a Redis client.
func NewWagerStore(rdb *redis.Client) *WagerStore {
	return &WagerStore{rdb: rdb}
}

// AppendWager atomically appends w to the player's wager list for the round.
func (w *WagerStore) AppendWager(ctx context.Context, market, roundID string, wager domain.Wager) error {
	raw, err := json.Marshal(wager)
	if err != nil {
		return fmt.Errorf("store: encode wager: %w", err)
	}
	_, err = appendWagerScript.Run(ctx, w.rdb, []string{betsKey(market, roundID)}, wager.PlayerID, raw, ancillaryTTLSeconds).Result()
	if err != nil {
		return fmt.Errorf("store: append wager: %w", err)
	}
	return nil
}

// RemoveWager atomically removes and returns the wager with the given
// transactionId from the player's list. It returns (nil, nil) if not found.
func (w *WagerStore) RemoveWager(ctx context.Context, market, roundID, playerID, transactionID string) (*domain.Wager, error) {
	res, err := removeWagerScript.Run(ctx, w.rdb, []string{betsKey(market, roundID)}, playerID, transactionID).Result()
	if err == redis.Nil {
		// The script's false return arrives as a nil reply.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: remove wager: %w", err)
	}
	raw, ok := res.(string)
	if !ok {
		return nil, nil
	}
	var wager domain.Wager
	if err := json.Unmarshal([]byte(raw), &wager); err != nil {
		return nil, fmt.Errorf("store: decode removed wager: %w", err)
	}
	return &wager, nil
}

// AllWagers reads every player's wager list for the round. It is meant to
// be called exactly once, by the payout pipeline, per spec.md §3.
func (w *WagerStore) AllWagers(ctx context.Context, market, roundID string) (map[string][]domain.Wager, error) {
	raw, err := w.rdb.HGetAll(ctx, betsKey(market, roundID)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: read wagers: %w", err)
	}

	out := make(map[string][]domain.Wager, len(raw))
	for playerID, listJSON := range raw {
		var list []domain.Wager
		if err := json.Unmarshal([]byte(listJSON), &list); err != nil {
			return nil, fmt.Errorf("store: decode wagers for %s: %w", playerID, err)
		}
		out[playerID] = list
	}
	return out, nil
}

// DeleteWagers destroys the round's wager hash, per the round-end and
// refund lifecycle in spec.md §3.
func (w *WagerStore) DeleteWagers(ctx context.Context, market, roundID string) error {
	return w.rdb.Del(ctx, betsKey(market, roundID)).Err()
}
