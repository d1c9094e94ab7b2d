package memory

import (
	"context"
	"sync"
	"time"
)

// ActivityTracker keeps active attempt markers in process, expiring them lazily.
type ActivityTracker struct {
	clock func() time.Time

	mu      sync.Mutex
	markers map[string]time.Time
}

func NewActivityTracker() *ActivityTracker {
	return &ActivityTracker{clock: time.Now, markers: make(map[string]time.Time)}
}

func (t *ActivityTracker) MarkActive(_ context.Context, quizID, viewerID string, ttl time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markers[activityKey(quizID, viewerID)] = t.clock().Add(ttl)
	return nil
}

func (t *ActivityTracker) IsActive(_ context.Context, quizID, viewerID string) (bool, error) {
	key := activityKey(quizID, viewerID)
	t.mu.Lock()
	defer t.mu.Unlock()
	expires, ok := t.markers[key]
	if !ok {
		return false, nil
	}
	if !expires.After(t.clock()) {
		delete(t.markers, key)
		return false, nil
	}
	return true, nil
}

func (t *ActivityTracker) Clear(_ context.Context, quizID, viewerID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.markers, activityKey(quizID, viewerID))
	return nil
}

func activityKey(quizID, viewerID string) string {
	return quizID + "|" + viewerID
}
