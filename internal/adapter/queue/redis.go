// Package queue implements the analysis Job Queue on a Redis stream.
package queue

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/devfolio/profile-api/internal/domain"
	"github.com/devfolio/profile-api/internal/port"
)

// Queue publishes analysis jobs onto a Redis stream consumed by the worker.
type Queue struct {
	rdb    *redis.Client
	stream string
}

// NewQueue wraps an already-connected Redis client.
func NewQueue(rdb *redis.Client, stream string) *Queue {
	return &Queue{rdb: rdb, stream: stream}
}

// Publish appends one job message and returns the stream entry id. No retry
// is performed here; callers own the retry policy.
func (q *Queue) Publish(ctx context.Context, msg domain.AnalysisJobMessage) (string, error) {
	id, err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{
			"user_id":      msg.UserID,
			"github_token": msg.GitHubToken,
			"queued_at":    strconv.FormatFloat(float64(msg.QueuedAt.UnixMicro())/1e6, 'f', 6, 64),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("%w: xadd %s: %v", port.ErrPublish, q.stream, err)
	}
	return id, nil
}
