package validation

import (
	"errors"
	"testing"

	"quiz-access-service/internal/domain"
)

func intRef(v int) *int { return &v }

func TestQuestionRejectsWrongOptionCount(t *testing.T) {
	v := New()
	_, err := v.Question(domain.QuestionSpec{
		Type:          domain.TypeSingleChoice,
		Text:          "Pick one",
		Marks:         1,
		Options:       []string{"a", "b", "c"},
		CorrectOption: intRef(0),
	})
	if !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected invalid question, got %v", err)
	}
}

func TestQuestionRejectsIndexOutOfRange(t *testing.T) {
	v := New()
	_, err := v.Question(domain.QuestionSpec{
		Type:          domain.TypeSingleChoice,
		Text:          "Pick one",
		Marks:         1,
		Options:       []string{"a", "b", "c", "d"},
		CorrectOption: intRef(4),
	})
	if !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected invalid question, got %v", err)
	}
}

func TestQuestionRejectsMissingType(t *testing.T) {
	v := New()
	if _, err := v.Question(domain.QuestionSpec{Text: "?", Marks: 1}); !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected invalid question, got %v", err)
	}
}

func TestQuestionRejectsMarksOutOfRange(t *testing.T) {
	v := New()
	answer := "x"
	if _, err := v.Question(domain.QuestionSpec{Type: domain.TypeFreeText, Text: "?", Marks: 11, ExpectedAnswer: &answer}); !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected invalid question, got %v", err)
	}
}

func TestQuestionsBuildsTypedPayloads(t *testing.T) {
	v := New()
	qs, err := v.Questions([]domain.QuestionSpec{
		{Type: domain.TypeTrueFalse, Text: "Sky is blue", Marks: 1, CorrectOption: intRef(0)},
		{Type: domain.TypeFillBlank, Text: "___", Marks: 2, Blanks: []string{"Paris"}},
		{Type: domain.TypeMatching, Text: "Match", Marks: 2, Pairs: []domain.MatchPair{{Left: "a", Right: "1"}, {Left: "b", Right: "2"}}},
	})
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if _, ok := qs[0].Payload.(domain.TrueFalse); !ok {
		t.Fatalf("expected true/false payload, got %T", qs[0].Payload)
	}
	if _, ok := qs[2].Payload.(domain.Matching); !ok {
		t.Fatalf("expected matching payload, got %T", qs[2].Payload)
	}
}

func TestQuizRules(t *testing.T) {
	v := New()
	valid := domain.Quiz{
		Title:         "Algebra",
		Duration:      30,
		Mode:          domain.ModeManual,
		Assignment:    domain.Assignment{Audience: domain.AudienceEveryone},
		AttemptPolicy: domain.AttemptsSingle,
	}
	if err := v.Quiz(valid); err != nil {
		t.Fatalf("expected valid quiz, got %v", err)
	}

	tooLong := valid
	tooLong.Duration = 181
	if err := v.Quiz(tooLong); !errors.Is(err, domain.ErrInvalidQuiz) {
		t.Fatalf("expected invalid duration, got %v", err)
	}

	ai := valid
	ai.Mode = domain.ModeAI
	if err := v.Quiz(ai); !errors.Is(err, domain.ErrInvalidQuiz) {
		t.Fatalf("expected ai quiz without settings to be rejected, got %v", err)
	}
	ai.AI = &domain.AISettings{Topic: "fractions", QuestionCount: 5, Difficulty: domain.DifficultyEasy}
	if err := v.Quiz(ai); err != nil {
		t.Fatalf("expected valid ai quiz, got %v", err)
	}

	unassigned := valid
	unassigned.Assignment = domain.Assignment{}
	if err := v.Quiz(unassigned); !errors.Is(err, domain.ErrInvalidQuiz) {
		t.Fatalf("expected unassigned quiz to be rejected, got %v", err)
	}
}
