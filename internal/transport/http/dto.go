package http

import (
	"time"

	"quiz-access-service/internal/answerkey"
	"quiz-access-service/internal/app"
	"quiz-access-service/internal/domain"
)

type createQuizRequest struct {
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Duration      int                   `json:"duration"`
	Active        *bool                 `json:"active"`
	Mode          domain.Mode           `json:"mode"`
	AI            *domain.AISettings    `json:"ai"`
	Assignment    domain.Assignment     `json:"assignment"`
	AttemptPolicy domain.AttemptPolicy  `json:"attemptPolicy"`
	Questions     []domain.QuestionSpec `json:"questions"`
}

func (r createQuizRequest) draft() app.QuizDraft {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	mode := r.Mode
	if mode == "" {
		mode = domain.ModeManual
	}
	return app.QuizDraft{
		Title:         r.Title,
		Description:   r.Description,
		Duration:      r.Duration,
		Active:        active,
		Mode:          mode,
		AI:            r.AI,
		Assignment:    r.Assignment,
		AttemptPolicy: r.AttemptPolicy,
		Questions:     r.Questions,
	}
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type questionsRequest struct {
	Questions []domain.QuestionSpec `json:"questions" binding:"required"`
}

type submitRequest struct {
	QuizID   string          `json:"quizId"`
	Answers  []domain.Answer `json:"answers"`
	KeyToken string          `json:"keyToken"`
}

// ownerQuizResponse carries the answer keys; it is only built for the quiz owner.
type ownerQuizResponse struct {
	Quiz      domain.Quiz           `json:"quiz"`
	Questions []domain.QuestionSpec `json:"questions"`
}

type publicQuiz struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	TotalMarks  int    `json:"totalMarks"`
}

type publicQuizResponse struct {
	Quiz      publicQuiz                 `json:"quiz"`
	Questions []answerkey.PublicQuestion `json:"questions"`
	KeyToken  string                     `json:"keyToken,omitempty"`
}

type questionsResponse struct {
	Questions  []domain.QuestionSpec `json:"questions"`
	TotalMarks int                   `json:"totalMarks"`
}

type submissionResponse struct {
	SubmissionID  string    `json:"submissionId"`
	Score         int       `json:"score"`
	TotalMarks    int       `json:"totalMarks"`
	Percentage    int       `json:"percentage"`
	AttemptNumber int       `json:"attemptNumber"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

type submissionsResponse struct {
	QuizID      string              `json:"quizId"`
	Submissions []domain.Submission `json:"submissions"`
}

func toOwnerResponse(quiz domain.Quiz, questions []domain.Question) ownerQuizResponse {
	return ownerQuizResponse{Quiz: quiz, Questions: toSpecs(questions)}
}

func toPublicResponse(view app.QuizView) publicQuizResponse {
	return publicQuizResponse{
		Quiz: publicQuiz{
			ID:          view.Quiz.ID,
			Title:       view.Quiz.Title,
			Description: view.Quiz.Description,
			Duration:    view.Quiz.Duration,
			TotalMarks:  view.TotalMarks,
		},
		Questions: view.Public,
		KeyToken:  view.KeyToken,
	}
}

func toSpecs(questions []domain.Question) []domain.QuestionSpec {
	out := make([]domain.QuestionSpec, 0, len(questions))
	for _, q := range questions {
		out = append(out, q.Spec())
	}
	return out
}

func toSubmissionResponse(s domain.Submission) submissionResponse {
	return submissionResponse{
		SubmissionID:  s.ID,
		Score:         s.Score,
		TotalMarks:    s.TotalMarks,
		Percentage:    s.Percentage,
		AttemptNumber: s.AttemptNumber,
		SubmittedAt:   s.SubmittedAt,
	}
}
