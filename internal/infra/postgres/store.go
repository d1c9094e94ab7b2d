// Package postgres is the durable store: bun models for writes and owner queries, a pgx loader for
// the cached read path.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-access-service/internal/domain"
)

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes,alias:q"`

	ID            string             `bun:"id,pk"`
	Title         string             `bun:"title,notnull"`
	Description   string             `bun:"description,notnull"`
	Duration      int                `bun:"duration,notnull"`
	TotalMarks    int                `bun:"total_marks,notnull"`
	Active        bool               `bun:"active,notnull"`
	Mode          string             `bun:"mode,notnull"`
	AI            *domain.AISettings `bun:"ai,type:jsonb,nullzero"`
	StudentID     string             `bun:"assigned_student_id,nullzero"`
	Audience      string             `bun:"assigned_audience,nullzero"`
	OwnerID       string             `bun:"owner_id,notnull"`
	AttemptPolicy string             `bun:"attempt_policy,notnull"`
	CreatedAt     time.Time          `bun:"created_at,notnull"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:qs"`

	ID       string              `bun:"id,pk"`
	QuizID   string              `bun:"quiz_id,notnull"`
	Position int                 `bun:"position,notnull"`
	Type     string              `bun:"type,notnull"`
	Text     string              `bun:"text,notnull"`
	Marks    int                 `bun:"marks,notnull"`
	Spec     domain.QuestionSpec `bun:"spec,type:jsonb,notnull"`
}

type submissionRow struct {
	bun.BaseModel `bun:"table:submissions,alias:s"`

	ID            string              `bun:"id,pk"`
	QuizID        string              `bun:"quiz_id,notnull"`
	SubmitterID   string              `bun:"submitter_id,notnull"`
	AttemptNumber int                 `bun:"attempt_number,notnull"`
	Items         []domain.GradedItem `bun:"items,type:jsonb,notnull"`
	Score         int                 `bun:"score,notnull"`
	TotalMarks    int                 `bun:"total_marks,notnull"`
	Percentage    int                 `bun:"percentage,notnull"`
	SubmittedAt   time.Time           `bun:"submitted_at,notnull"`
}

// Store implements app.Store on Postgres.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Open connects bun to dsn with the pgdriver connector.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func (s *Store) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	row := toQuizRow(quiz)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var row quizRow
	err := s.db.NewSelect().Model(&row).Where("q.id = ?", quizID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("select quiz: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) SetActive(ctx context.Context, quizID string, active bool) error {
	res, err := s.db.NewUpdate().Model((*quizRow)(nil)).
		Set("active = ?", active).
		Where("id = ?", quizID).
		Exec(ctx)
	return affected(res, err, domain.ErrQuizNotFound)
}

func (s *Store) SetTotalMarks(ctx context.Context, quizID string, total int) error {
	res, err := s.db.NewUpdate().Model((*quizRow)(nil)).
		Set("total_marks = ?", total).
		Where("id = ?", quizID).
		Exec(ctx)
	return affected(res, err, domain.ErrQuizNotFound)
}

// DeleteQuiz relies on ON DELETE CASCADE for questions and submissions.
func (s *Store) DeleteQuiz(ctx context.Context, quizID string) error {
	res, err := s.db.NewDelete().Model((*quizRow)(nil)).Where("id = ?", quizID).Exec(ctx)
	return affected(res, err, domain.ErrQuizNotFound)
}

func (s *Store) ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	var rows []questionRow
	if err := s.db.NewSelect().Model(&rows).
		Where("qs.quiz_id = ?", quizID).
		Order("qs.position ASC", "qs.id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	out := make([]domain.Question, 0, len(rows))
	for _, r := range rows {
		q, err := r.Spec.Question()
		if err != nil {
			return nil, fmt.Errorf("question %s: %w", r.ID, err)
		}
		q.ID, q.QuizID = r.ID, r.QuizID
		out = append(out, q)
	}
	return out, nil
}

// InsertQuestions appends the batch after the current last position in one transaction.
func (s *Store) InsertQuestions(ctx context.Context, quizID string, questions []domain.Question) error {
	if len(questions) == 0 {
		return nil
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// serialize batches of the same quiz so positions stay unique
		var locked string
		err := tx.NewSelect().Model((*quizRow)(nil)).Column("id").Where("id = ?", quizID).For("UPDATE").Scan(ctx, &locked)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrQuizNotFound
		}
		if err != nil {
			return fmt.Errorf("lock quiz: %w", err)
		}
		var last int
		if err := tx.NewSelect().Model((*questionRow)(nil)).
			ColumnExpr("COALESCE(MAX(position), 0)").
			Where("quiz_id = ?", quizID).
			Scan(ctx, &last); err != nil {
			return fmt.Errorf("last position: %w", err)
		}
		rows := make([]questionRow, 0, len(questions))
		for i, q := range questions {
			q.QuizID = quizID
			rows = append(rows, toQuestionRow(q, last+i+1))
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
		return nil
	})
}

func (s *Store) UpdateQuestion(ctx context.Context, question domain.Question) error {
	row := toQuestionRow(question, 0)
	res, err := s.db.NewUpdate().Model(&row).
		Column("type", "text", "marks", "spec").
		Where("id = ? AND quiz_id = ?", question.ID, question.QuizID).
		Exec(ctx)
	return affected(res, err, domain.ErrQuestionNotFound)
}

func (s *Store) DeleteQuestion(ctx context.Context, quizID, questionID string) error {
	res, err := s.db.NewDelete().Model((*questionRow)(nil)).
		Where("id = ? AND quiz_id = ?", questionID, quizID).
		Exec(ctx)
	return affected(res, err, domain.ErrQuestionNotFound)
}

func (s *Store) LatestAttempt(ctx context.Context, quizID, submitterID string) (int, error) {
	var latest int
	err := s.db.NewSelect().Model((*submissionRow)(nil)).
		ColumnExpr("COALESCE(MAX(attempt_number), 0)").
		Where("quiz_id = ? AND submitter_id = ?", quizID, submitterID).
		Scan(ctx, &latest)
	if err != nil {
		return 0, fmt.Errorf("latest attempt: %w", err)
	}
	return latest, nil
}

// InsertSubmission maps a violation of the (quiz, submitter, attempt) unique index to
// domain.ErrAlreadySubmitted.
func (s *Store) InsertSubmission(ctx context.Context, sub domain.Submission) error {
	row := toSubmissionRow(sub)
	_, err := s.db.NewInsert().Model(&row).Exec(ctx)
	if err == nil {
		return nil
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Field('C') {
		case "23505":
			return domain.ErrAlreadySubmitted
		case "23503":
			return domain.ErrQuizNotFound
		}
	}
	return fmt.Errorf("insert submission: %w", err)
}

func (s *Store) GetSubmission(ctx context.Context, submissionID string) (domain.Submission, error) {
	var row submissionRow
	err := s.db.NewSelect().Model(&row).Where("s.id = ?", submissionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("select submission: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListSubmissions(ctx context.Context, quizID string) ([]domain.Submission, error) {
	var rows []submissionRow
	if err := s.db.NewSelect().Model(&rows).
		Where("s.quiz_id = ?", quizID).
		Order("s.submitted_at ASC", "s.submitter_id ASC", "s.attempt_number ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("select submissions: %w", err)
	}
	out := make([]domain.Submission, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func affected(res sql.Result, err error, missing error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func toQuizRow(q domain.Quiz) quizRow {
	return quizRow{
		ID:            q.ID,
		Title:         q.Title,
		Description:   q.Description,
		Duration:      q.Duration,
		TotalMarks:    q.TotalMarks,
		Active:        q.Active,
		Mode:          string(q.Mode),
		AI:            q.AI,
		StudentID:     q.Assignment.StudentID,
		Audience:      q.Assignment.Audience,
		OwnerID:       q.OwnerID,
		AttemptPolicy: string(q.AttemptPolicy),
		CreatedAt:     q.CreatedAt,
	}
}

func (r quizRow) toDomain() domain.Quiz {
	return domain.Quiz{
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description,
		Duration:      r.Duration,
		TotalMarks:    r.TotalMarks,
		Active:        r.Active,
		Mode:          domain.Mode(r.Mode),
		AI:            r.AI,
		Assignment:    domain.Assignment{StudentID: r.StudentID, Audience: r.Audience},
		OwnerID:       r.OwnerID,
		AttemptPolicy: domain.AttemptPolicy(r.AttemptPolicy),
		CreatedAt:     r.CreatedAt,
	}
}

func toQuestionRow(q domain.Question, position int) questionRow {
	return questionRow{
		ID:       q.ID,
		QuizID:   q.QuizID,
		Position: position,
		Type:     string(q.Type()),
		Text:     q.Text,
		Marks:    q.Marks,
		Spec:     q.Spec(),
	}
}

func toSubmissionRow(s domain.Submission) submissionRow {
	return submissionRow{
		ID:            s.ID,
		QuizID:        s.QuizID,
		SubmitterID:   s.SubmitterID,
		AttemptNumber: s.AttemptNumber,
		Items:         s.Items,
		Score:         s.Score,
		TotalMarks:    s.TotalMarks,
		Percentage:    s.Percentage,
		SubmittedAt:   s.SubmittedAt,
	}
}

func (r submissionRow) toDomain() domain.Submission {
	return domain.Submission{
		ID:            r.ID,
		QuizID:        r.QuizID,
		SubmitterID:   r.SubmitterID,
		AttemptNumber: r.AttemptNumber,
		Items:         r.Items,
		Score:         r.Score,
		TotalMarks:    r.TotalMarks,
		Percentage:    r.Percentage,
		SubmittedAt:   r.SubmittedAt,
	}
}
