package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"quiz-access-service/internal/answerkey"
	"quiz-access-service/internal/domain"
	"quiz-access-service/internal/grading"
	"quiz-access-service/internal/validation"
)

const defaultMaxRetries = 3

// Deps wires the collaborators of QuizService.
type Deps struct {
	Store     Store
	Content   ContentRepository
	Activity  ActivityTracker
	Feeds     FeedRepository
	Publisher EventPublisher
	Provider  *Provider
	Validator *validation.Validator
	Logger    *slog.Logger
	// MaxRetries bounds how often a lost attempt-number race is retried under multiple attempts.
	MaxRetries int
	Clock      func() time.Time
}

// QuizService contains the quiz authoring, access and submission use cases.
type QuizService struct {
	store      Store
	content    ContentRepository
	feeds      FeedRepository
	publisher  EventPublisher
	provider   *Provider
	guard      *Guard
	router     *QuestionRouter
	validator  *validation.Validator
	logger     *slog.Logger
	maxRetries int
	now        func() time.Time
}

func NewQuizService(d Deps) *QuizService {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Publisher == nil {
		d.Publisher = NopPublisher{}
	}
	if d.Validator == nil {
		d.Validator = validation.New()
	}
	if d.MaxRetries <= 0 {
		d.MaxRetries = defaultMaxRetries
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return &QuizService{
		store:      d.Store,
		content:    d.Content,
		feeds:      d.Feeds,
		publisher:  d.Publisher,
		provider:   d.Provider,
		guard:      NewGuard(d.Store, d.Activity),
		router:     NewQuestionRouter(d.Store, NewRecalculator(d.Store, d.Store), d.Content, d.Logger),
		validator:  d.Validator,
		logger:     d.Logger,
		maxRetries: d.MaxRetries,
		now:        d.Clock,
	}
}

// QuizDraft is an author's request to create a quiz.
type QuizDraft struct {
	Title         string
	Description   string
	Duration      int
	Active        bool
	Mode          domain.Mode
	AI            *domain.AISettings
	Assignment    domain.Assignment
	AttemptPolicy domain.AttemptPolicy
	Questions     []domain.QuestionSpec
}

// QuizView is what one access returns. Owners get Questions with answers; everyone else gets
// Public and, for generated sets, a KeyToken to hand back on submission.
type QuizView struct {
	Quiz       domain.Quiz
	Owner      bool
	Questions  []domain.Question
	Public     []answerkey.PublicQuestion
	TotalMarks int
	KeyToken   string
}

// SubmitRequest is a consumer's answer set.
type SubmitRequest struct {
	Answers  []domain.Answer
	KeyToken string
}

// CreateQuiz stores a new quiz owned by viewer. Manual quizzes take the draft's questions; ai quizzes
// store a generated set that later serves as the fallback, with the total set to the creation estimate.
func (s *QuizService) CreateQuiz(ctx context.Context, viewer domain.Viewer, draft QuizDraft) (domain.QuizContent, error) {
	if !viewer.IsTeacher() {
		return domain.QuizContent{}, fmt.Errorf("%w: only teachers create quizzes", domain.ErrForbidden)
	}
	if draft.AttemptPolicy == "" {
		draft.AttemptPolicy = domain.AttemptsSingle
	}
	quiz := domain.Quiz{
		ID:            uuid.NewString(),
		Title:         draft.Title,
		Description:   draft.Description,
		Duration:      draft.Duration,
		Active:        draft.Active,
		Mode:          draft.Mode,
		AI:            draft.AI,
		Assignment:    draft.Assignment,
		OwnerID:       viewer.ID,
		AttemptPolicy: draft.AttemptPolicy,
		CreatedAt:     s.now().UTC(),
	}
	if quiz.Mode != domain.ModeAI {
		quiz.AI = nil
	}
	if err := s.validator.Quiz(quiz); err != nil {
		return domain.QuizContent{}, err
	}

	var questions []domain.Question
	switch quiz.Mode {
	case domain.ModeAI:
		generated, err := s.provider.generate(ctx, quiz)
		if err != nil {
			return domain.QuizContent{}, err
		}
		questions = generated
	default:
		validated, err := s.validator.Questions(draft.Questions)
		if err != nil {
			return domain.QuizContent{}, err
		}
		for i := range validated {
			validated[i].ID = uuid.NewString()
		}
		questions = validated
	}

	if err := s.store.CreateQuiz(ctx, quiz); err != nil {
		return domain.QuizContent{}, err
	}
	if len(questions) > 0 {
		if _, err := s.router.Execute(ctx, CreateQuestions{Quiz: quiz.ID, Questions: questions}); err != nil {
			s.rollbackCreate(ctx, quiz.ID, err)
			return domain.QuizContent{}, err
		}
	}
	if quiz.Mode == domain.ModeAI {
		if err := s.store.SetTotalMarks(ctx, quiz.ID, estimateTotal(questions, quiz.AI.QuestionCount)); err != nil {
			s.rollbackCreate(ctx, quiz.ID, err)
			return domain.QuizContent{}, err
		}
		s.invalidate(ctx, quiz.ID)
	}
	s.logger.Info("quiz created", "quiz_id", quiz.ID, "owner_id", viewer.ID, "mode", quiz.Mode, "questions", len(questions))
	return s.loadContent(ctx, quiz.ID)
}

// rollbackCreate removes a quiz whose creation failed after the header was stored.
func (s *QuizService) rollbackCreate(ctx context.Context, quizID string, cause error) {
	if err := s.store.DeleteQuiz(context.WithoutCancel(ctx), quizID); err != nil {
		s.logger.Warn("rollback of failed quiz creation failed", "quiz_id", quizID, "cause", cause, "error", err)
		return
	}
	s.invalidate(ctx, quizID)
	s.logger.Warn("quiz creation rolled back", "quiz_id", quizID, "error", cause)
}

// estimateTotal is round(average marks x requested count).
func estimateTotal(questions []domain.Question, requested int) int {
	if len(questions) == 0 {
		return 0
	}
	avg := float64(domain.SumMarks(questions)) / float64(len(questions))
	return int(math.Round(avg * float64(requested)))
}

// Access authorizes the viewer and resolves the question set they see. A consumer access starts
// the attempt period.
func (s *QuizService) Access(ctx context.Context, quizID string, viewer domain.Viewer) (QuizView, error) {
	content, err := s.content.GetContent(ctx, quizID)
	if err != nil {
		return QuizView{}, err
	}
	quiz := content.Quiz
	if err := s.guard.AuthorizeAccess(quiz, viewer); err != nil {
		return QuizView{}, err
	}
	if quiz.OwnedBy(viewer.ID) {
		return QuizView{Quiz: quiz, Owner: true, Questions: content.Questions, TotalMarks: quiz.TotalMarks}, nil
	}

	res, err := s.provider.Resolve(ctx, content, viewer)
	if err != nil {
		return QuizView{}, err
	}
	if err := s.guard.MarkActive(ctx, quiz, viewer); err != nil {
		return QuizView{}, err
	}
	quiz.TotalMarks = res.TotalMarks
	return QuizView{
		Quiz:       quiz,
		Public:     res.Public,
		TotalMarks: res.TotalMarks,
		KeyToken:   res.KeyToken,
	}, nil
}

func (s *QuizService) SetActive(ctx context.Context, viewer domain.Viewer, quizID string, active bool) error {
	if _, err := s.owned(ctx, viewer, quizID); err != nil {
		return err
	}
	if err := s.store.SetActive(ctx, quizID, active); err != nil {
		return err
	}
	s.invalidate(ctx, quizID)
	s.logger.Info("quiz activity changed", "quiz_id", quizID, "active", active)
	return nil
}

// DeleteQuiz removes the quiz with its questions and submissions.
func (s *QuizService) DeleteQuiz(ctx context.Context, viewer domain.Viewer, quizID string) error {
	if _, err := s.owned(ctx, viewer, quizID); err != nil {
		return err
	}
	if err := s.store.DeleteQuiz(ctx, quizID); err != nil {
		return err
	}
	s.invalidate(ctx, quizID)
	s.logger.Info("quiz deleted", "quiz_id", quizID)
	return nil
}

// AddQuestions validates and stores a batch, returning the stored questions and the new total.
func (s *QuizService) AddQuestions(ctx context.Context, viewer domain.Viewer, quizID string, specs []domain.QuestionSpec) ([]domain.Question, int, error) {
	if _, err := s.owned(ctx, viewer, quizID); err != nil {
		return nil, 0, err
	}
	if len(specs) == 0 {
		return nil, 0, fmt.Errorf("%w: no questions given", domain.ErrInvalidQuestion)
	}
	questions, err := s.validator.Questions(specs)
	if err != nil {
		return nil, 0, err
	}
	for i := range questions {
		questions[i].ID = uuid.NewString()
		questions[i].QuizID = quizID
	}
	total, err := s.router.Execute(ctx, CreateQuestions{Quiz: quizID, Questions: questions})
	if err != nil {
		return nil, 0, err
	}
	return questions, total, nil
}

func (s *QuizService) UpdateQuestion(ctx context.Context, viewer domain.Viewer, quizID, questionID string, spec domain.QuestionSpec) (domain.Question, int, error) {
	if _, err := s.owned(ctx, viewer, quizID); err != nil {
		return domain.Question{}, 0, err
	}
	question, err := s.validator.Question(spec)
	if err != nil {
		return domain.Question{}, 0, err
	}
	question.ID = questionID
	question.QuizID = quizID
	total, err := s.router.Execute(ctx, UpdateQuestion{Question: question})
	if err != nil {
		return domain.Question{}, 0, err
	}
	return question, total, nil
}

func (s *QuizService) DeleteQuestion(ctx context.Context, viewer domain.Viewer, quizID, questionID string) (int, error) {
	if _, err := s.owned(ctx, viewer, quizID); err != nil {
		return 0, err
	}
	return s.router.Execute(ctx, DeleteQuestion{Quiz: quizID, QuestionID: questionID})
}

// Submit grades an answer set and stores it exactly once per attempt. Under multiple attempts a
// lost race for the attempt number is retried with a fresh number.
func (s *QuizService) Submit(ctx context.Context, quizID string, viewer domain.Viewer, req SubmitRequest) (domain.Submission, error) {
	content, err := s.content.GetContent(ctx, quizID)
	if err != nil {
		return domain.Submission{}, err
	}
	quiz := content.Quiz
	if err := s.guard.AuthorizeAccess(quiz, viewer); err != nil {
		return domain.Submission{}, err
	}
	key, total, ephemeral, err := s.provider.GradingKey(content, viewer, req.KeyToken)
	if err != nil {
		return domain.Submission{}, err
	}
	outcome := grading.Grade(req.Answers, key)
	if ephemeral {
		total = outcome.KeyMarks
	}

	var submission domain.Submission
	for try := 0; ; try++ {
		attempt, err := s.guard.AuthorizeSubmission(ctx, quiz, viewer, len(key))
		if err != nil {
			return domain.Submission{}, err
		}
		submission = domain.Submission{
			ID:            uuid.NewString(),
			QuizID:        quiz.ID,
			SubmitterID:   viewer.ID,
			AttemptNumber: attempt,
			Items:         outcome.Items,
			Score:         outcome.Score,
			TotalMarks:    total,
			Percentage:    grading.Percentage(outcome.Score, total),
			SubmittedAt:   s.now().UTC(),
		}
		err = s.store.InsertSubmission(ctx, submission)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrAlreadySubmitted) && quiz.AllowsMultipleAttempts() && try < s.maxRetries {
			s.logger.Debug("attempt number taken, retrying", "quiz_id", quiz.ID, "submitter_id", viewer.ID, "attempt", attempt)
			continue
		}
		return domain.Submission{}, err
	}

	s.logger.Info("submission graded",
		"quiz_id", quiz.ID, "submission_id", submission.ID, "submitter_id", viewer.ID,
		"attempt", submission.AttemptNumber, "score", submission.Score, "total", submission.TotalMarks)
	s.afterSubmit(ctx, submission)
	return submission, nil
}

func (s *QuizService) afterSubmit(ctx context.Context, submission domain.Submission) {
	if err := s.guard.Complete(ctx, submission.QuizID, submission.SubmitterID); err != nil {
		s.logger.Warn("clear active marker failed", "quiz_id", submission.QuizID, "submitter_id", submission.SubmitterID, "error", err)
	}
	if s.feeds != nil {
		if feed, ok := s.feeds.Get(submission.QuizID); ok {
			feed.Record(submission)
		}
	}
	if err := s.publisher.PublishGraded(ctx, submission.GradedEvent()); err != nil {
		s.logger.Warn("publish graded event failed", "submission_id", submission.ID, "error", err)
	}
}

// Result returns a submission with its per-question breakdown to its submitter.
func (s *QuizService) Result(ctx context.Context, viewer domain.Viewer, submissionID string) (domain.Submission, error) {
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return domain.Submission{}, err
	}
	if submission.SubmitterID != viewer.ID {
		return domain.Submission{}, domain.ErrForbidden
	}
	return submission, nil
}

// ListSubmissions returns every stored attempt on the quiz to its owner.
func (s *QuizService) ListSubmissions(ctx context.Context, viewer domain.Viewer, quizID string) (domain.Quiz, []domain.Submission, error) {
	quiz, err := s.owned(ctx, viewer, quizID)
	if err != nil {
		return domain.Quiz{}, nil, err
	}
	subs, err := s.store.ListSubmissions(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, nil, err
	}
	return quiz, subs, nil
}

func (s *QuizService) AttemptState(ctx context.Context, viewer domain.Viewer, quizID string) (domain.AttemptStatus, error) {
	content, err := s.content.GetContent(ctx, quizID)
	if err != nil {
		return domain.AttemptStatus{}, err
	}
	if !content.Quiz.OwnedBy(viewer.ID) && !content.Quiz.Assignment.Includes(viewer) {
		return domain.AttemptStatus{}, domain.ErrForbidden
	}
	return s.guard.State(ctx, content.Quiz, viewer)
}

// SubscribeResults returns a channel of result boards for the quiz owner.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) SubscribeResults(ctx context.Context, viewer domain.Viewer, quizID string) (<-chan domain.ResultBoard, func(), error) {
	if _, err := s.owned(ctx, viewer, quizID); err != nil {
		return nil, nil, err
	}
	feed := s.feeds.GetOrCreate(quizID)
	if !feed.Seeded() {
		subs, err := s.store.ListSubmissions(ctx, quizID)
		if err != nil {
			return nil, nil, err
		}
		feed.Seed(subs)
	}
	ch, cancel := feed.Subscribe()
	return ch, func() {
		cancel()
		s.feeds.DeleteIfIdle(quizID)
	}, nil
}

func (s *QuizService) owned(ctx context.Context, viewer domain.Viewer, quizID string) (domain.Quiz, error) {
	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if !quiz.OwnedBy(viewer.ID) {
		return domain.Quiz{}, domain.ErrForbidden
	}
	return quiz, nil
}

func (s *QuizService) loadContent(ctx context.Context, quizID string) (domain.QuizContent, error) {
	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizContent{}, err
	}
	questions, err := s.store.ListQuestions(ctx, quizID)
	if err != nil {
		return domain.QuizContent{}, err
	}
	return domain.QuizContent{Quiz: quiz, Questions: questions}, nil
}

func (s *QuizService) invalidate(ctx context.Context, quizID string) {
	if s.content == nil {
		return
	}
	if err := s.content.Invalidate(ctx, quizID); err != nil {
		s.logger.Warn("content cache invalidation failed", "quiz_id", quizID, "error", err)
	}
}
