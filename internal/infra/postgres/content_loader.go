package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-access-service/internal/domain"
)

// ContentLoader loads a quiz and its stored questions for the content cache.
type ContentLoader struct {
	pool *pgxpool.Pool
}

func NewContentLoader(pool *pgxpool.Pool) *ContentLoader {
	return &ContentLoader{pool: pool}
}

const (
	selectQuizSQL = `SELECT id, title, description, duration, total_marks, active, mode, ai,
		COALESCE(assigned_student_id, ''), COALESCE(assigned_audience, ''), owner_id, attempt_policy, created_at
		FROM quizzes WHERE id = $1`
	selectQuestionsSQL = `SELECT spec FROM questions WHERE quiz_id = $1 ORDER BY position, id`
)

func (l *ContentLoader) LoadContent(ctx context.Context, quizID string) (domain.QuizContent, error) {
	var (
		quiz   domain.Quiz
		mode   string
		policy string
		ai     []byte
	)
	err := l.pool.QueryRow(ctx, selectQuizSQL, quizID).Scan(
		&quiz.ID, &quiz.Title, &quiz.Description, &quiz.Duration, &quiz.TotalMarks, &quiz.Active,
		&mode, &ai, &quiz.Assignment.StudentID, &quiz.Assignment.Audience, &quiz.OwnerID, &policy, &quiz.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizContent{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.QuizContent{}, fmt.Errorf("load quiz: %w", err)
	}
	quiz.Mode = domain.Mode(mode)
	quiz.AttemptPolicy = domain.AttemptPolicy(policy)
	if len(ai) > 0 && string(ai) != "null" {
		var settings domain.AISettings
		if err := json.Unmarshal(ai, &settings); err != nil {
			return domain.QuizContent{}, fmt.Errorf("unmarshal ai settings: %w", err)
		}
		quiz.AI = &settings
	}

	rows, err := l.pool.Query(ctx, selectQuestionsSQL, quizID)
	if err != nil {
		return domain.QuizContent{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	questions := make([]domain.Question, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return domain.QuizContent{}, fmt.Errorf("scan question: %w", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return domain.QuizContent{}, fmt.Errorf("unmarshal question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.QuizContent{}, fmt.Errorf("load questions: %w", err)
	}
	return domain.QuizContent{Quiz: quiz, Questions: questions}, nil
}
