package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quiz-access-service/internal/answerkey"
	"quiz-access-service/internal/app"
	"quiz-access-service/internal/domain"
	"quiz-access-service/internal/infra/memory"
)

var errStoreDown = errors.New("store unavailable")

// flakyStore fails selected writes and remembers the quizzes it created.
type flakyStore struct {
	*memory.Store
	mu         sync.Mutex
	created    []string
	failInsert bool
	failTotals bool
}

func (s *flakyStore) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	s.created = append(s.created, quiz.ID)
	s.mu.Unlock()
	return s.Store.CreateQuiz(ctx, quiz)
}

func (s *flakyStore) InsertQuestions(ctx context.Context, quizID string, questions []domain.Question) error {
	s.mu.Lock()
	fail := s.failInsert
	s.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return s.Store.InsertQuestions(ctx, quizID, questions)
}

func (s *flakyStore) SetTotalMarks(ctx context.Context, quizID string, total int) error {
	s.mu.Lock()
	fail := s.failTotals
	s.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return s.Store.SetTotalMarks(ctx, quizID, total)
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

func newService(t *testing.T, store app.Store, content app.ContentRepository) *app.QuizService {
	t.Helper()
	sealer, err := answerkey.NewSealer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return app.NewQuizService(app.Deps{
		Store:      store,
		Content:    content,
		Activity:   memory.NewActivityTracker(),
		Feeds:      memory.NewFeedStore(),
		Provider:   app.NewProvider(&fakeGenerator{}, sealer, answerkey.NewShuffler(), 50*time.Millisecond, logger),
		Logger:     logger,
		MaxRetries: 5,
	})
}

func TestCreateQuizRemovesHeaderWhenQuestionsFail(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.NewStore(), failInsert: true}
	service := newService(t, store, memory.NewContentCache(store, time.Minute))

	_, err := service.CreateQuiz(ctx, teacher, manualDraft(singleChoice(2, 1)))
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("expected the insert error, got %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one header written, got %d", len(store.created))
	}
	if _, err := store.GetQuiz(ctx, store.created[0]); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected the header rolled back, got %v", err)
	}
	if _, err := service.Access(ctx, store.created[0], teacher); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected the quiz to be gone, got %v", err)
	}
}

func TestCreateQuizRemovesHeaderWhenTotalFails(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.NewStore(), failTotals: true}
	service := newService(t, store, memory.NewContentCache(store, time.Minute))

	if _, err := service.CreateQuiz(ctx, teacher, manualDraft(singleChoice(2, 1))); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected the total error, got %v", err)
	}
	if _, err := store.GetQuiz(ctx, store.created[0]); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected the header rolled back, got %v", err)
	}
	if qs, _ := store.ListQuestions(ctx, store.created[0]); len(qs) != 0 {
		t.Fatalf("expected the questions removed with the header, got %d", len(qs))
	}
}

func TestMutationInvalidatesCacheWhenRecomputeFails(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.NewStore()}
	service := newService(t, store, memory.NewContentCache(store, time.Minute))

	content, err := service.CreateQuiz(ctx, teacher, manualDraft(singleChoice(2, 1)))
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if view, err := service.Access(ctx, content.Quiz.ID, teacher); err != nil || len(view.Questions) != 1 {
		t.Fatalf("expected one cached question, got %d (%v)", len(view.Questions), err)
	}

	store.mu.Lock()
	store.failTotals = true
	store.mu.Unlock()
	if _, _, err := service.AddQuestions(ctx, teacher, content.Quiz.ID, []domain.QuestionSpec{singleChoice(3, 0)}); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected the recompute error, got %v", err)
	}

	view, err := service.Access(ctx, content.Quiz.ID, teacher)
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	if len(view.Questions) != 2 {
		t.Fatalf("expected the stored question to be visible after the failed recompute, got %d", len(view.Questions))
	}
}

func TestDeactivationDuringContentLoadIsNotLost(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed := newService(t, store, nil)
	content, err := seed.CreateQuiz(ctx, teacher, manualDraft(singleChoice(2, 1)))
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	loader := &heldLoader{ContentLoader: store, loaded: make(chan struct{}), release: make(chan struct{})}
	service := newService(t, store, memory.NewContentCache(loader, time.Minute))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = service.Access(ctx, content.Quiz.ID, student)
	}()
	<-loader.loaded

	if err := service.SetActive(ctx, teacher, content.Quiz.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	close(loader.release)
	<-done

	if _, err := service.Access(ctx, content.Quiz.ID, student); !errors.Is(err, domain.ErrQuizInactive) {
		t.Fatalf("expected the quiz to be inactive, got %v", err)
	}
}
