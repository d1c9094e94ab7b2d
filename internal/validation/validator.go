// Package validation wraps go-playground/validator with the quiz domain rules.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"quiz-access-service/internal/domain"
)

// Validator checks request DTOs and generator output.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Struct validates tags on s and reports failures wrapped in sentinel.
func (v *Validator) Struct(s any, sentinel error) error {
	if err := v.validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %s", sentinel, describe(err))
	}
	return nil
}

// Question validates a wire spec and builds the typed question.
func (v *Validator) Question(spec domain.QuestionSpec) (domain.Question, error) {
	if err := v.Struct(spec, domain.ErrInvalidQuestion); err != nil {
		return domain.Question{}, err
	}
	q, err := spec.Question()
	if err != nil {
		return domain.Question{}, err
	}
	if err := q.Validate(); err != nil {
		return domain.Question{}, err
	}
	return q, nil
}

// Questions validates a whole set, naming the offending position.
func (v *Validator) Questions(specs []domain.QuestionSpec) ([]domain.Question, error) {
	out := make([]domain.Question, 0, len(specs))
	for i, spec := range specs {
		q, err := v.Question(spec)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		out = append(out, q)
	}
	return out, nil
}

// Quiz checks the header invariants that tags cannot express.
func (v *Validator) Quiz(q domain.Quiz) error {
	var problems []string
	if strings.TrimSpace(q.Title) == "" {
		problems = append(problems, "title is required")
	}
	if q.Duration < domain.MinDuration || q.Duration > domain.MaxDuration {
		problems = append(problems, fmt.Sprintf("duration must be between %d and %d minutes", domain.MinDuration, domain.MaxDuration))
	}
	switch q.Mode {
	case domain.ModeManual:
	case domain.ModeAI:
		if q.AI == nil {
			problems = append(problems, "ai settings are required for ai quizzes")
		} else if err := v.validate.Struct(aiSettings{
			Topic:         q.AI.Topic,
			QuestionCount: q.AI.QuestionCount,
			Difficulty:    q.AI.Difficulty,
		}); err != nil {
			problems = append(problems, describe(err))
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown mode %q", q.Mode))
	}
	if q.Assignment.StudentID == "" && q.Assignment.Audience == "" {
		problems = append(problems, "assignment needs a student or an audience")
	}
	switch q.AttemptPolicy {
	case domain.AttemptsSingle, domain.AttemptsMultiple:
	default:
		problems = append(problems, fmt.Sprintf("unknown attempt policy %q", q.AttemptPolicy))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidQuiz, strings.Join(problems, "; "))
	}
	return nil
}

type aiSettings struct {
	Topic         string            `validate:"required,max=200"`
	QuestionCount int               `validate:"min=1,max=50"`
	Difficulty    domain.Difficulty `validate:"oneof=easy medium hard"`
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
