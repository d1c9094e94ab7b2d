package memory

import (
	"context"
	"testing"
	"time"
)

func TestActivityTrackerExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := NewActivityTracker()
	tracker.clock = func() time.Time { return now }
	ctx := context.Background()

	_ = tracker.MarkActive(ctx, "quiz-1", "u1", time.Minute)
	if active, _ := tracker.IsActive(ctx, "quiz-1", "u1"); !active {
		t.Fatalf("expected active marker")
	}
	if active, _ := tracker.IsActive(ctx, "quiz-1", "u2"); active {
		t.Fatalf("marker must be per viewer")
	}

	now = now.Add(2 * time.Minute)
	if active, _ := tracker.IsActive(ctx, "quiz-1", "u1"); active {
		t.Fatalf("expected marker to expire")
	}

	_ = tracker.MarkActive(ctx, "quiz-1", "u1", time.Minute)
	_ = tracker.Clear(ctx, "quiz-1", "u1")
	if active, _ := tracker.IsActive(ctx, "quiz-1", "u1"); active {
		t.Fatalf("expected marker cleared")
	}
}
