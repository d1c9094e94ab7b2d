package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QuestionType is the closed set of supported question kinds.
type QuestionType string

const (
	TypeSingleChoice QuestionType = "single_choice"
	TypeTrueFalse    QuestionType = "true_false"
	TypeFreeText     QuestionType = "free_text"
	TypeFillBlank    QuestionType = "fill_blank"
	TypeMatching     QuestionType = "matching"
)

// SingleChoiceOptions is the number of options every single-choice question carries.
const SingleChoiceOptions = 4

// TrueFalseOptions is the fixed option domain of a true/false question.
var TrueFalseOptions = []string{"True", "False"}

// Payload is the type-specific part of a question. The implementations below are the only ones;
// code dispatching on a payload switches over them exhaustively.
type Payload interface {
	Type() QuestionType
	isPayload()
}

type SingleChoice struct {
	Options       []string
	CorrectOption int
}

type TrueFalse struct {
	CorrectOption int
}

type FreeText struct {
	ExpectedAnswer string
}

// FillBlank holds one accepted answer per blank, in blank order.
type FillBlank struct {
	Blanks []string
}

type Matching struct {
	Pairs []MatchPair
}

type MatchPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

func (SingleChoice) Type() QuestionType { return TypeSingleChoice }
func (TrueFalse) Type() QuestionType    { return TypeTrueFalse }
func (FreeText) Type() QuestionType     { return TypeFreeText }
func (FillBlank) Type() QuestionType    { return TypeFillBlank }
func (Matching) Type() QuestionType     { return TypeMatching }

func (SingleChoice) isPayload() {}
func (TrueFalse) isPayload()    {}
func (FreeText) isPayload()     {}
func (FillBlank) isPayload()    {}
func (Matching) isPayload()     {}

// Question is a gradable question with its answer key.
type Question struct {
	ID      string
	QuizID  string
	Text    string
	Marks   int
	Payload Payload
}

func (q Question) Type() QuestionType {
	if q.Payload == nil {
		return ""
	}
	return q.Payload.Type()
}

// QuestionSpec is the flat wire shape of a question, used by authoring requests, the generator
// contract and persisted JSON. Answer fields are included.
type QuestionSpec struct {
	ID             string       `json:"id,omitempty"`
	QuizID         string       `json:"quizId,omitempty"`
	Type           QuestionType `json:"type" validate:"required,oneof=single_choice true_false free_text fill_blank matching"`
	Text           string       `json:"text" validate:"required,max=2000"`
	Marks          int          `json:"marks" validate:"min=1,max=10"`
	Options        []string     `json:"options,omitempty" validate:"omitempty,dive,required"`
	CorrectOption  *int         `json:"correctOption,omitempty"`
	ExpectedAnswer *string      `json:"expectedAnswer,omitempty"`
	Blanks         []string     `json:"blanks,omitempty" validate:"omitempty,dive,required"`
	Pairs          []MatchPair  `json:"pairs,omitempty" validate:"omitempty,dive"`
}

// Spec flattens the question into its wire shape.
func (q Question) Spec() QuestionSpec {
	spec := QuestionSpec{
		ID:     q.ID,
		QuizID: q.QuizID,
		Type:   q.Type(),
		Text:   q.Text,
		Marks:  q.Marks,
	}
	switch p := q.Payload.(type) {
	case SingleChoice:
		spec.Options = append([]string(nil), p.Options...)
		spec.CorrectOption = intPtr(p.CorrectOption)
	case TrueFalse:
		spec.Options = append([]string(nil), TrueFalseOptions...)
		spec.CorrectOption = intPtr(p.CorrectOption)
	case FreeText:
		spec.ExpectedAnswer = stringPtr(p.ExpectedAnswer)
	case FillBlank:
		spec.Blanks = append([]string(nil), p.Blanks...)
	case Matching:
		spec.Pairs = append([]MatchPair(nil), p.Pairs...)
	}
	return spec
}

// Question builds the typed question from its wire shape. It checks that the fields of the tagged
// type are present; range rules are enforced by Question.Validate.
func (s QuestionSpec) Question() (Question, error) {
	q := Question{ID: s.ID, QuizID: s.QuizID, Text: s.Text, Marks: s.Marks}
	switch s.Type {
	case TypeSingleChoice:
		if s.CorrectOption == nil {
			return Question{}, fmt.Errorf("%w: single_choice requires correctOption", ErrInvalidQuestion)
		}
		q.Payload = SingleChoice{Options: append([]string(nil), s.Options...), CorrectOption: *s.CorrectOption}
	case TypeTrueFalse:
		if s.CorrectOption == nil {
			return Question{}, fmt.Errorf("%w: true_false requires correctOption", ErrInvalidQuestion)
		}
		if len(s.Options) != 0 && len(s.Options) != len(TrueFalseOptions) {
			return Question{}, fmt.Errorf("%w: true_false has exactly %d options", ErrInvalidQuestion, len(TrueFalseOptions))
		}
		q.Payload = TrueFalse{CorrectOption: *s.CorrectOption}
	case TypeFreeText:
		if s.ExpectedAnswer == nil {
			return Question{}, fmt.Errorf("%w: free_text requires expectedAnswer", ErrInvalidQuestion)
		}
		q.Payload = FreeText{ExpectedAnswer: *s.ExpectedAnswer}
	case TypeFillBlank:
		q.Payload = FillBlank{Blanks: append([]string(nil), s.Blanks...)}
	case TypeMatching:
		q.Payload = Matching{Pairs: append([]MatchPair(nil), s.Pairs...)}
	case "":
		return Question{}, fmt.Errorf("%w: missing type", ErrInvalidQuestion)
	default:
		return Question{}, fmt.Errorf("%w: unknown type %q", ErrInvalidQuestion, s.Type)
	}
	return q, nil
}

// Validate enforces the per-type shape: option counts, index ranges, non-empty keys.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidQuestion)
	}
	if q.Marks < MinMarks || q.Marks > MaxMarks {
		return fmt.Errorf("%w: marks must be between %d and %d", ErrInvalidQuestion, MinMarks, MaxMarks)
	}
	switch p := q.Payload.(type) {
	case SingleChoice:
		if len(p.Options) != SingleChoiceOptions {
			return fmt.Errorf("%w: single_choice has exactly %d options, got %d", ErrInvalidQuestion, SingleChoiceOptions, len(p.Options))
		}
		if p.CorrectOption < 0 || p.CorrectOption >= len(p.Options) {
			return fmt.Errorf("%w: correctOption %d out of range", ErrInvalidQuestion, p.CorrectOption)
		}
	case TrueFalse:
		if p.CorrectOption < 0 || p.CorrectOption >= len(TrueFalseOptions) {
			return fmt.Errorf("%w: correctOption %d out of range", ErrInvalidQuestion, p.CorrectOption)
		}
	case FreeText:
		if strings.TrimSpace(p.ExpectedAnswer) == "" {
			return fmt.Errorf("%w: expectedAnswer is required", ErrInvalidQuestion)
		}
	case FillBlank:
		if len(p.Blanks) == 0 {
			return fmt.Errorf("%w: fill_blank needs at least one blank", ErrInvalidQuestion)
		}
		for i, b := range p.Blanks {
			if strings.TrimSpace(b) == "" {
				return fmt.Errorf("%w: blank %d is empty", ErrInvalidQuestion, i)
			}
		}
	case Matching:
		if len(p.Pairs) < 2 {
			return fmt.Errorf("%w: matching needs at least two pairs", ErrInvalidQuestion)
		}
		lefts := make(map[string]struct{}, len(p.Pairs))
		rights := make(map[string]struct{}, len(p.Pairs))
		for _, pair := range p.Pairs {
			if pair.Left == "" || pair.Right == "" {
				return fmt.Errorf("%w: matching pair has an empty side", ErrInvalidQuestion)
			}
			if _, dup := lefts[pair.Left]; dup {
				return fmt.Errorf("%w: duplicate left item %q", ErrInvalidQuestion, pair.Left)
			}
			if _, dup := rights[pair.Right]; dup {
				return fmt.Errorf("%w: duplicate right item %q", ErrInvalidQuestion, pair.Right)
			}
			lefts[pair.Left] = struct{}{}
			rights[pair.Right] = struct{}{}
		}
	case nil:
		return fmt.Errorf("%w: missing type", ErrInvalidQuestion)
	default:
		return fmt.Errorf("%w: unsupported payload %T", ErrInvalidQuestion, p)
	}
	return nil
}

func (q Question) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Spec())
}

func (q *Question) UnmarshalJSON(data []byte) error {
	var spec QuestionSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return err
	}
	parsed, err := spec.Question()
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// SumMarks totals the marks of a question set.
func SumMarks(questions []Question) int {
	total := 0
	for _, q := range questions {
		total += q.Marks
	}
	return total
}

func intPtr(v int) *int          { return &v }
func stringPtr(v string) *string { return &v }
