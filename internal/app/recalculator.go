package app

import (
	"context"
	"fmt"
	"log/slog"

	"quiz-access-service/internal/domain"
)

// QuestionCommand is a mutation of a quiz's stored question set. Commands can only be applied by
// QuestionRouter.
type QuestionCommand interface {
	QuizID() string
	apply(ctx context.Context, store QuestionStore) error
}

// CreateQuestions inserts a batch of questions in one command.
type CreateQuestions struct {
	Quiz      string
	Questions []domain.Question
}

func (c CreateQuestions) QuizID() string { return c.Quiz }

func (c CreateQuestions) apply(ctx context.Context, store QuestionStore) error {
	for i := range c.Questions {
		c.Questions[i].QuizID = c.Quiz
	}
	return store.InsertQuestions(ctx, c.Quiz, c.Questions)
}

type UpdateQuestion struct {
	Question domain.Question
}

func (c UpdateQuestion) QuizID() string { return c.Question.QuizID }

func (c UpdateQuestion) apply(ctx context.Context, store QuestionStore) error {
	return store.UpdateQuestion(ctx, c.Question)
}

type DeleteQuestion struct {
	Quiz       string
	QuestionID string
}

func (c DeleteQuestion) QuizID() string { return c.Quiz }

func (c DeleteQuestion) apply(ctx context.Context, store QuestionStore) error {
	return store.DeleteQuestion(ctx, c.Quiz, c.QuestionID)
}

// Recalculator rewrites a quiz's total from its stored questions.
type Recalculator struct {
	questions QuestionStore
	quizzes   QuizStore
}

func NewRecalculator(questions QuestionStore, quizzes QuizStore) *Recalculator {
	return &Recalculator{questions: questions, quizzes: quizzes}
}

// Recompute reads the full current set from the store, never a cache, so interleaved mutations
// converge on the next run.
func (r *Recalculator) Recompute(ctx context.Context, quizID string) (int, error) {
	questions, err := r.questions.ListQuestions(ctx, quizID)
	if err != nil {
		return 0, fmt.Errorf("list questions: %w", err)
	}
	total := domain.SumMarks(questions)
	if err := r.quizzes.SetTotalMarks(ctx, quizID, total); err != nil {
		return 0, fmt.Errorf("set total marks: %w", err)
	}
	return total, nil
}

// QuestionRouter is the single entry point for question mutations: apply, recompute, invalidate.
type QuestionRouter struct {
	store        QuestionStore
	recalculator *Recalculator
	content      ContentRepository
	logger       *slog.Logger
}

func NewQuestionRouter(store QuestionStore, recalculator *Recalculator, content ContentRepository, logger *slog.Logger) *QuestionRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuestionRouter{store: store, recalculator: recalculator, content: content, logger: logger}
}

// Execute applies cmd and returns the recomputed total. Once the store has changed the cached
// content is invalidated, even if the recompute fails.
func (r *QuestionRouter) Execute(ctx context.Context, cmd QuestionCommand) (int, error) {
	if err := cmd.apply(ctx, r.store); err != nil {
		return 0, err
	}
	defer r.invalidate(ctx, cmd.QuizID())
	return r.recalculator.Recompute(ctx, cmd.QuizID())
}

func (r *QuestionRouter) invalidate(ctx context.Context, quizID string) {
	if r.content == nil {
		return
	}
	if err := r.content.Invalidate(ctx, quizID); err != nil {
		r.logger.Warn("content cache invalidation failed", "quiz_id", quizID, "error", err)
	}
}
