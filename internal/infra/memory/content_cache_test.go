package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quiz-access-service/internal/app"
	"quiz-access-service/internal/domain"
)

func TestContentCacheCaches(t *testing.T) {
	loader := &countingLoader{ContentLoader: seededStore(t)}
	cache := NewContentCache(loader, time.Minute)

	if _, err := cache.GetContent(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get content: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	if _, err := cache.GetContent(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get content 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
}

func TestContentCacheInvalidate(t *testing.T) {
	loader := &countingLoader{ContentLoader: seededStore(t)}
	cache := NewContentCache(loader, time.Minute)

	_, _ = cache.GetContent(context.Background(), "quiz-1")
	if err := cache.Invalidate(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = cache.GetContent(context.Background(), "quiz-1")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls.Load())
	}
}

func TestContentCacheExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	loader := &countingLoader{ContentLoader: seededStore(t)}
	cache := NewContentCache(loader, time.Minute)
	cache.clock = func() time.Time { return now }

	_, _ = cache.GetContent(context.Background(), "quiz-1")
	now = now.Add(2 * time.Minute)
	_, _ = cache.GetContent(context.Background(), "quiz-1")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls.Load())
	}
}

func TestContentCacheCollapsesConcurrentLoads(t *testing.T) {
	release := make(chan struct{})
	loader := &countingLoader{ContentLoader: seededStore(t), gate: release}
	cache := NewContentCache(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.GetContent(context.Background(), "quiz-1"); err != nil {
				t.Errorf("get content: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if loader.calls.Load() != 1 {
		t.Fatalf("expected one load for concurrent readers, got %d", loader.calls.Load())
	}
}

func TestContentCacheSkipsLoadOverlappingInvalidate(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	loader := newHeldLoader(store)
	cache := NewContentCache(loader, time.Minute)

	done := make(chan domain.QuizContent)
	go func() {
		content, err := cache.GetContent(ctx, "quiz-1")
		if err != nil {
			t.Errorf("get content: %v", err)
		}
		done <- content
	}()
	<-loader.loaded

	if err := store.SetActive(ctx, "quiz-1", false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if err := cache.Invalidate(ctx, "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	close(loader.release)
	if inflight := <-done; !inflight.Quiz.Active {
		t.Fatalf("expected the in-flight read to return what it loaded")
	}

	content, err := cache.GetContent(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if content.Quiz.Active {
		t.Fatalf("content read before the invalidate was cached")
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected a reload after invalidate, loader calls %d", loader.calls.Load())
	}
}

func TestContentCacheNotFound(t *testing.T) {
	cache := NewContentCache(seededStore(t), time.Minute)
	if _, err := cache.GetContent(context.Background(), "missing"); err != domain.ErrQuizNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

type countingLoader struct {
	app.ContentLoader
	calls atomic.Int32
	gate  chan struct{}
}

func (l *countingLoader) LoadContent(ctx context.Context, quizID string) (domain.QuizContent, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	return l.ContentLoader.LoadContent(ctx, quizID)
}

// heldLoader reads the store on its first call, then waits for release before returning.
type heldLoader struct {
	app.ContentLoader
	calls   atomic.Int32
	loaded  chan struct{}
	release chan struct{}
}

func newHeldLoader(inner app.ContentLoader) *heldLoader {
	return &heldLoader{ContentLoader: inner, loaded: make(chan struct{}), release: make(chan struct{})}
}

func (l *heldLoader) LoadContent(ctx context.Context, quizID string) (domain.QuizContent, error) {
	content, err := l.ContentLoader.LoadContent(ctx, quizID)
	if l.calls.Add(1) == 1 {
		close(l.loaded)
		<-l.release
	}
	return content, err
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore()
	ctx := context.Background()
	if err := store.CreateQuiz(ctx, domain.Quiz{ID: "quiz-1", Title: "Sums", Duration: 10, Active: true, Mode: domain.ModeManual}); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if err := store.InsertQuestions(ctx, "quiz-1", []domain.Question{{
		ID:      "q1",
		Text:    "What is 2 + 2?",
		Marks:   1,
		Payload: domain.SingleChoice{Options: []string{"3", "4", "5", "6"}, CorrectOption: 1},
	}}); err != nil {
		t.Fatalf("insert questions: %v", err)
	}
	return store
}
