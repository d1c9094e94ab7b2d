package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quiz-access-service/internal/answerkey"
	"quiz-access-service/internal/domain"
)

// Resolution is the question set a viewer gets for one access.
type Resolution struct {
	// Key carries answers and never leaves the service except sealed in KeyToken.
	Key        []domain.Question
	Public     []answerkey.PublicQuestion
	TotalMarks int
	// Ephemeral is set when Key was generated for this access and is not stored.
	Ephemeral bool
	KeyToken  string
}

// Provider decides which question set a viewer sees.
type Provider struct {
	generator Generator
	sealer    *answerkey.Sealer
	shuffler  answerkey.Shuffler
	timeout   time.Duration
	logger    *slog.Logger
}

func NewProvider(generator Generator, sealer *answerkey.Sealer, shuffler answerkey.Shuffler, timeout time.Duration, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if shuffler == nil {
		shuffler = answerkey.NewShuffler()
	}
	return &Provider{
		generator: generator,
		sealer:    sealer,
		shuffler:  shuffler,
		timeout:   timeout,
		logger:    logger,
	}
}

// Resolve returns stored questions, or a freshly generated set for consumers of per-viewer ai
// quizzes. Generator failures fall back to stored questions; with nothing stored it fails with
// domain.ErrNoQuestions.
func (p *Provider) Resolve(ctx context.Context, content domain.QuizContent, viewer domain.Viewer) (Resolution, error) {
	quiz := content.Quiz
	if p.generates(quiz, viewer) {
		key, err := p.generate(ctx, quiz)
		if err == nil {
			token, err := p.sealer.Seal(quiz.ID, viewer.ID, key)
			if err != nil {
				return Resolution{}, fmt.Errorf("seal answer key: %w", err)
			}
			return Resolution{
				Key:        key,
				Public:     answerkey.StripAll(key, p.shuffler),
				TotalMarks: domain.SumMarks(key),
				Ephemeral:  true,
				KeyToken:   token,
			}, nil
		}
		p.logger.Warn("question generation failed, serving stored questions",
			"quiz_id", quiz.ID, "viewer_id", viewer.ID, "error", err)
	}

	if len(content.Questions) == 0 {
		return Resolution{}, domain.ErrNoQuestions
	}
	return Resolution{
		Key:        content.Questions,
		Public:     answerkey.StripAll(content.Questions, p.shuffler),
		TotalMarks: quiz.TotalMarks,
	}, nil
}

// GradingKey returns the key a submission is graded against. A key token is honoured only for
// per-viewer ai quizzes; without one the stored set is used, which is what a fallback access showed.
func (p *Provider) GradingKey(content domain.QuizContent, viewer domain.Viewer, keyToken string) ([]domain.Question, int, bool, error) {
	quiz := content.Quiz
	if keyToken != "" && p.generates(quiz, viewer) {
		key, err := p.sealer.Open(keyToken, quiz.ID, viewer.ID)
		if err != nil {
			return nil, 0, false, err
		}
		return key, domain.SumMarks(key), true, nil
	}
	return content.Questions, quiz.TotalMarks, false, nil
}

func (p *Provider) generates(quiz domain.Quiz, viewer domain.Viewer) bool {
	return quiz.RegeneratesPerViewer() && !viewer.IsTeacher() && !quiz.OwnedBy(viewer.ID) && p.sealer != nil
}

func (p *Provider) generate(ctx context.Context, quiz domain.Quiz) ([]domain.Question, error) {
	if p.generator == nil || quiz.AI == nil {
		return nil, fmt.Errorf("%w: generation not available for quiz %s", domain.ErrGeneratorFailed, quiz.ID)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	key, err := p.generator.Generate(ctx, *quiz.AI)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty question set", domain.ErrInvalidGeneratorOutput)
	}
	for i := range key {
		if err := key[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: question %d: %v", domain.ErrInvalidGeneratorOutput, i, err)
		}
		key[i].QuizID = quiz.ID
	}
	return key, nil
}
