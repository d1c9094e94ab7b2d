package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActivityTracker stores active attempt markers in Redis so every instance sees them. Each marker
// expires with the quiz duration.
type ActivityTracker struct {
	client *redis.Client
}

func NewActivityTracker(client *redis.Client) *ActivityTracker {
	return &ActivityTracker{client: client}
}

func (t *ActivityTracker) MarkActive(ctx context.Context, quizID, viewerID string, ttl time.Duration) error {
	return t.client.Set(ctx, t.key(quizID, viewerID), "1", ttl).Err()
}

func (t *ActivityTracker) IsActive(ctx context.Context, quizID, viewerID string) (bool, error) {
	n, err := t.client.Exists(ctx, t.key(quizID, viewerID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *ActivityTracker) Clear(ctx context.Context, quizID, viewerID string) error {
	return t.client.Del(ctx, t.key(quizID, viewerID)).Err()
}

func (t *ActivityTracker) key(quizID, viewerID string) string {
	return "quiz:active:" + quizID + ":" + viewerID
}
