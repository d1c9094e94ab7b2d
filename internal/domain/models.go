package domain

import (
	"encoding/json"
	"slices"
	"time"
)

// Role is the viewer's platform role.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Viewer is the authenticated principal accessing a quiz.
type Viewer struct {
	ID     string
	Role   Role
	Groups []string
}

func (v Viewer) IsTeacher() bool { return v.Role == RoleTeacher }

// Mode tells how a quiz's questions were authored.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeAI     Mode = "ai"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// AttemptPolicy controls how many graded submissions a submitter may have.
type AttemptPolicy string

const (
	AttemptsSingle   AttemptPolicy = "single"
	AttemptsMultiple AttemptPolicy = "multiple"
)

const (
	MinDuration = 1
	MaxDuration = 180
	MinMarks    = 1
	MaxMarks    = 10
)

// AISettings are the generator inputs stored with an ai quiz.
type AISettings struct {
	Topic           string     `json:"topic"`
	QuestionCount   int        `json:"questionCount"`
	Difficulty      Difficulty `json:"difficulty"`
	UniquePerViewer bool       `json:"uniquePerViewer"`
}

// AudienceEveryone assigns a quiz to every student.
const AudienceEveryone = "all"

// Assignment targets a quiz at a single student or at an audience (group name or AudienceEveryone).
type Assignment struct {
	StudentID string `json:"studentId,omitempty"`
	Audience  string `json:"audience,omitempty"`
}

// Includes reports whether the viewer is the assigned student or belongs to the assigned audience.
func (a Assignment) Includes(v Viewer) bool {
	if a.StudentID != "" && a.StudentID == v.ID {
		return true
	}
	switch {
	case a.Audience == "":
		return false
	case a.Audience == AudienceEveryone:
		return true
	default:
		return slices.Contains(v.Groups, a.Audience)
	}
}

// Quiz is the quiz header. TotalMarks is derived from the question set.
type Quiz struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Duration      int           `json:"duration"`
	TotalMarks    int           `json:"totalMarks"`
	Active        bool          `json:"active"`
	Mode          Mode          `json:"mode"`
	AI            *AISettings   `json:"ai,omitempty"`
	Assignment    Assignment    `json:"assignment"`
	OwnerID       string        `json:"ownerId"`
	AttemptPolicy AttemptPolicy `json:"attemptPolicy"`
	CreatedAt     time.Time     `json:"createdAt"`
}

func (q Quiz) OwnedBy(viewerID string) bool { return q.OwnerID == viewerID }

// RegeneratesPerViewer reports whether consumers get a freshly generated set on every access.
func (q Quiz) RegeneratesPerViewer() bool {
	return q.Mode == ModeAI && q.AI != nil && q.AI.UniquePerViewer
}

func (q Quiz) AllowsMultipleAttempts() bool { return q.AttemptPolicy == AttemptsMultiple }

// QuizContent is the read model served by content repositories: the header plus its stored questions.
type QuizContent struct {
	Quiz      Quiz       `json:"quiz"`
	Questions []Question `json:"questions"`
}

// Answer is one submitted entry; Value is decoded per question type at grading time.
type Answer struct {
	QuestionID string          `json:"questionId"`
	Value      json.RawMessage `json:"selectedValue"`
}

// GradedItem is the per-question outcome kept on a submission for review.
type GradedItem struct {
	QuestionID    string          `json:"questionId"`
	Type          QuestionType    `json:"type"`
	Text          string          `json:"text"`
	Submitted     json.RawMessage `json:"submitted,omitempty"`
	Expected      json.RawMessage `json:"expected"`
	Marks         int             `json:"marks"`
	Earned        int             `json:"earned"`
	Correct       bool            `json:"correct"`
	Answered      bool            `json:"answered"`
	PendingReview bool            `json:"pendingReview,omitempty"`
}

// Submission is a graded attempt. It is never updated after insert.
type Submission struct {
	ID            string       `json:"id"`
	QuizID        string       `json:"quizId"`
	SubmitterID   string       `json:"submitterId"`
	AttemptNumber int          `json:"attemptNumber"`
	Items         []GradedItem `json:"items"`
	Score         int          `json:"score"`
	TotalMarks    int          `json:"totalMarks"`
	Percentage    int          `json:"percentage"`
	SubmittedAt   time.Time    `json:"submittedAt"`
}

// AttemptState is the per (quiz, submitter) lifecycle position.
type AttemptState string

const (
	StateNotStarted AttemptState = "not_started"
	StateActive     AttemptState = "active"
	StateGraded     AttemptState = "graded"
)

// AttemptStatus is reported to a viewer asking where they stand on a quiz.
type AttemptStatus struct {
	QuizID    string       `json:"quizId"`
	State     AttemptState `json:"state"`
	Attempts  int          `json:"attempts"`
	CanSubmit bool         `json:"canSubmit"`
}

// ResultEntry is a submitter's best graded attempt on the owner's live board.
type ResultEntry struct {
	SubmitterID   string    `json:"submitterId"`
	SubmissionID  string    `json:"submissionId"`
	AttemptNumber int       `json:"attemptNumber"`
	Score         int       `json:"score"`
	TotalMarks    int       `json:"totalMarks"`
	Percentage    int       `json:"percentage"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// ResultBoard is the ordered snapshot pushed to quiz owners.
type ResultBoard struct {
	QuizID    string        `json:"quizId"`
	Entries   []ResultEntry `json:"entries"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// GradedEvent is published after a submission is stored.
type GradedEvent struct {
	QuizID        string    `json:"quizId"`
	SubmissionID  string    `json:"submissionId"`
	SubmitterID   string    `json:"submitterId"`
	AttemptNumber int       `json:"attemptNumber"`
	Score         int       `json:"score"`
	TotalMarks    int       `json:"totalMarks"`
	Percentage    int       `json:"percentage"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

func (s Submission) ResultEntry() ResultEntry {
	return ResultEntry{
		SubmitterID:   s.SubmitterID,
		SubmissionID:  s.ID,
		AttemptNumber: s.AttemptNumber,
		Score:         s.Score,
		TotalMarks:    s.TotalMarks,
		Percentage:    s.Percentage,
		SubmittedAt:   s.SubmittedAt,
	}
}

func (s Submission) GradedEvent() GradedEvent {
	return GradedEvent{
		QuizID:        s.QuizID,
		SubmissionID:  s.ID,
		SubmitterID:   s.SubmitterID,
		AttemptNumber: s.AttemptNumber,
		Score:         s.Score,
		TotalMarks:    s.TotalMarks,
		Percentage:    s.Percentage,
		SubmittedAt:   s.SubmittedAt,
	}
}
