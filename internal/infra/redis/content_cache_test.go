package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quiz-access-service/internal/app"
	"quiz-access-service/internal/domain"
	"quiz-access-service/internal/infra/memory"
)

func TestContentCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	loader := &countingLoader{ContentLoader: seededStore(t)}
	cache := NewContentCache(client, loader, time.Minute)

	content, err := cache.GetContent(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("quiz:quiz-1:content") {
		t.Fatalf("expected content key in redis")
	}
	if ttl := mr.TTL("quiz:quiz-1:content"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with at most 10%% jitter, got %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	cached, err := cache.GetContent(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get cached content: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if len(cached.Questions) != 1 || cached.Quiz.Title != content.Quiz.Title {
		t.Fatalf("cached content differs: %+v", cached)
	}
	sc, ok := cached.Questions[0].Payload.(domain.SingleChoice)
	if !ok || sc.CorrectOption != 1 {
		t.Fatalf("grading key lost in cache round trip: %+v", cached.Questions[0])
	}
}

func TestContentCacheInvalidateDeletesKey(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{ContentLoader: seededStore(t)}
	cache := NewContentCache(newClient(mr), loader, time.Minute)

	_, _ = cache.GetContent(context.Background(), "quiz-1")
	if err := cache.Invalidate(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("quiz:quiz-1:content") {
		t.Fatalf("expected content key removed")
	}
	_, _ = cache.GetContent(context.Background(), "quiz-1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls)
	}
}

func TestContentCacheDropsCorruptEntry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	_ = mr.Set("quiz:quiz-1:content", "{not json")
	loader := &countingLoader{ContentLoader: seededStore(t)}
	cache := NewContentCache(newClient(mr), loader, time.Minute)

	if _, err := cache.GetContent(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get content: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected a reload for a corrupt entry, loader calls=%d", loader.calls)
	}
}

func TestContentCacheSkipsLoadOverlappingInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := seededStore(t)
	loader := &heldLoader{ContentLoader: store, loaded: make(chan struct{}), release: make(chan struct{})}
	cache := NewContentCache(newClient(mr), loader, time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := cache.GetContent(ctx, "quiz-1"); err != nil {
			t.Errorf("get content: %v", err)
		}
	}()
	<-loader.loaded

	if err := store.SetActive(ctx, "quiz-1", false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if err := cache.Invalidate(ctx, "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	close(loader.release)
	<-done

	if mr.Exists("quiz:quiz-1:content") {
		t.Fatalf("content read before the invalidate was written to redis")
	}
	content, err := cache.GetContent(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if content.Quiz.Active {
		t.Fatalf("expected the inactive quiz after reload")
	}
	if !mr.Exists("quiz:quiz-1:content") {
		t.Fatalf("expected the fresh load to be cached")
	}
}

// heldLoader reads the store on its first call, then waits for release before returning.
type heldLoader struct {
	app.ContentLoader
	calls   atomic.Int32
	loaded  chan struct{}
	release chan struct{}
}

func (l *heldLoader) LoadContent(ctx context.Context, quizID string) (domain.QuizContent, error) {
	content, err := l.ContentLoader.LoadContent(ctx, quizID)
	if l.calls.Add(1) == 1 {
		close(l.loaded)
		<-l.release
	}
	return content, err
}

type countingLoader struct {
	app.ContentLoader
	calls int
}

func (l *countingLoader) LoadContent(ctx context.Context, quizID string) (domain.QuizContent, error) {
	l.calls++
	return l.ContentLoader.LoadContent(ctx, quizID)
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
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

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
