package app

import (
	"context"
	"time"

	"quiz-access-service/internal/domain"
)

// QuizStore persists quiz headers.
type QuizStore interface {
	CreateQuiz(ctx context.Context, quiz domain.Quiz) error
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	SetActive(ctx context.Context, quizID string, active bool) error
	SetTotalMarks(ctx context.Context, quizID string, total int) error
	// DeleteQuiz removes the quiz together with its questions and submissions.
	DeleteQuiz(ctx context.Context, quizID string) error
}

// QuestionStore persists the stored question set of a quiz. Callers outside this package go through
// QuestionRouter so totals stay in step.
type QuestionStore interface {
	ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
	InsertQuestions(ctx context.Context, quizID string, questions []domain.Question) error
	UpdateQuestion(ctx context.Context, question domain.Question) error
	DeleteQuestion(ctx context.Context, quizID, questionID string) error
}

// SubmissionStore persists graded attempts.
type SubmissionStore interface {
	// LatestAttempt returns the highest attempt number of the submitter, 0 when none.
	LatestAttempt(ctx context.Context, quizID, submitterID string) (int, error)
	// InsertSubmission stores s once. A second insert for the same quiz, submitter and attempt
	// number fails with domain.ErrAlreadySubmitted.
	InsertSubmission(ctx context.Context, s domain.Submission) error
	GetSubmission(ctx context.Context, submissionID string) (domain.Submission, error)
	ListSubmissions(ctx context.Context, quizID string) ([]domain.Submission, error)
}

// Store is the durable backing store.
type Store interface {
	QuizStore
	QuestionStore
	SubmissionStore
}

// ContentLoader fetches quiz content from the backing store.
type ContentLoader interface {
	LoadContent(ctx context.Context, quizID string) (domain.QuizContent, error)
}

// ContentRepository serves quiz content for the read path, usually from a cache.
type ContentRepository interface {
	GetContent(ctx context.Context, quizID string) (domain.QuizContent, error)
	Invalidate(ctx context.Context, quizID string) error
}

// ActivityTracker remembers which submitters have an attempt in progress.
type ActivityTracker interface {
	MarkActive(ctx context.Context, quizID, viewerID string, ttl time.Duration) error
	IsActive(ctx context.Context, quizID, viewerID string) (bool, error)
	Clear(ctx context.Context, quizID, viewerID string) error
}

// EventPublisher announces graded submissions to other services.
type EventPublisher interface {
	PublishGraded(ctx context.Context, event domain.GradedEvent) error
}

// Generator produces a validated question set from AI settings.
type Generator interface {
	Generate(ctx context.Context, settings domain.AISettings) ([]domain.Question, error)
}

// FeedRepository abstracts where live result feeds are kept.
type FeedRepository interface {
	GetOrCreate(quizID string) *ResultFeed
	Get(quizID string) (*ResultFeed, bool)
	DeleteIfIdle(quizID string)
}

// NopPublisher drops events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishGraded(context.Context, domain.GradedEvent) error { return nil }
