// Package status implements the analysis Status Store on Redis.
//
// One hash per user ("profile:analysis:<user_id>") with fields "status" and
// "turn". All transitions run as Lua scripts so read-modify-write is atomic
// at the store: two concurrent TriggerAnalysis calls cannot both observe
// idle and both proceed.
package status

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/devfolio/profile-api/internal/domain"
	"github.com/devfolio/profile-api/internal/port"
)

const keyPrefix = "profile:analysis:"

// tryStart flips idle -> in_progress only when the current status is idle.
var tryStartScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') == 'idle' then
  redis.call('HSET', KEYS[1], 'status', 'in_progress')
  return 1
end
return 0
`)

// complete flips in_progress -> idle and bumps turn. A re-delivered
// completion finds the record already idle and leaves turn alone. A missing
// record is reported, never created here.
var completeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local s = redis.call('HGET', KEYS[1], 'status')
redis.call('HSET', KEYS[1], 'status', 'idle')
if s == 'in_progress' then
  return redis.call('HINCRBY', KEYS[1], 'turn', 1)
end
return tonumber(redis.call('HGET', KEYS[1], 'turn') or '0')
`)

// Store is the Redis-backed implementation of port.StatusStore.
type Store struct {
	rdb *redis.Client
}

// NewStore wraps an already-connected Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func key(userID string) string {
	return keyPrefix + userID
}

// EnsureRecord creates the {idle, 0} record if the user has none yet.
func (s *Store) EnsureRecord(ctx context.Context, userID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSetNX(ctx, key(userID), "status", domain.StatusIdle)
	pipe.HSetNX(ctx, key(userID), "turn", 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ensure status record: %w", err)
	}
	return nil
}

// GetStatus returns the user's current record.
func (s *Store) GetStatus(ctx context.Context, userID string) (*domain.StatusRecord, error) {
	vals, err := s.rdb.HGetAll(ctx, key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	if len(vals) == 0 {
		return nil, port.ErrStatusNotFound
	}

	rec := &domain.StatusRecord{UserID: userID, Status: vals["status"]}
	if _, err := fmt.Sscanf(vals["turn"], "%d", &rec.Turn); err != nil {
		return nil, fmt.Errorf("parse turn %q: %w", vals["turn"], err)
	}
	return rec, nil
}

// TryStart atomically claims the in-flight slot for the user.
func (s *Store) TryStart(ctx context.Context, userID string) (bool, error) {
	n, err := tryStartScript.Run(ctx, s.rdb, []string{key(userID)}).Int()
	if err != nil {
		return false, fmt.Errorf("try start: %w", err)
	}
	return n == 1, nil
}

// Complete marks the current analysis finished and returns the new turn.
func (s *Store) Complete(ctx context.Context, userID string) (int64, error) {
	turn, err := completeScript.Run(ctx, s.rdb, []string{key(userID)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("complete: %w", err)
	}
	if turn < 0 {
		return 0, port.ErrStatusNotFound
	}
	return turn, nil
}

// ForceIdle resets status without incrementing turn.
func (s *Store) ForceIdle(ctx context.Context, userID string) error {
	if err := s.rdb.HSet(ctx, key(userID), "status", domain.StatusIdle).Err(); err != nil {
		return fmt.Errorf("force idle: %w", err)
	}
	return nil
}
