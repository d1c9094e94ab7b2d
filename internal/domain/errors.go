package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question id does not belong to the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrSubmissionNotFound indicates the submission does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrForbidden is returned when the viewer is neither the owner nor the assigned target.
	ErrForbidden = errors.New("viewer is not allowed to access this quiz")
	// ErrQuizInactive is returned for any consumer interaction with a deactivated quiz.
	ErrQuizInactive = errors.New("quiz is not active")
	// ErrAlreadySubmitted is returned when a single-attempt quiz already has a graded submission.
	ErrAlreadySubmitted = errors.New("already submitted")
	// ErrNoQuestions is returned when there is nothing to show or grade.
	ErrNoQuestions = errors.New("no questions available")
	// ErrInvalidGeneratorOutput indicates the generator answered with a malformed question set.
	ErrInvalidGeneratorOutput = errors.New("invalid generator output")
	// ErrGeneratorFailed indicates the generator could not be reached or timed out.
	ErrGeneratorFailed = errors.New("question generator failed")
	// ErrInvalidKeyToken indicates a sealed answer key that cannot be opened for this quiz and viewer.
	ErrInvalidKeyToken = errors.New("invalid answer key token")
	// ErrInvalidQuestion indicates a question payload violating its type's shape.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrInvalidQuiz indicates quiz settings outside their allowed ranges.
	ErrInvalidQuiz = errors.New("invalid quiz")
)

// Kind classifies errors for the boundary layer.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindUnavailable     Kind = "unavailable"
	KindConflict        Kind = "conflict"
	KindInvalidState    Kind = "invalid_state"
	KindUpstreamFailure Kind = "upstream_failure"
	KindInvalid         Kind = "invalid"
	KindInternal        Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrQuizNotFound, KindNotFound},
	{ErrQuestionNotFound, KindNotFound},
	{ErrSubmissionNotFound, KindNotFound},
	{ErrForbidden, KindForbidden},
	{ErrQuizInactive, KindUnavailable},
	{ErrAlreadySubmitted, KindConflict},
	{ErrNoQuestions, KindInvalidState},
	{ErrInvalidGeneratorOutput, KindInvalidState},
	{ErrInvalidKeyToken, KindInvalidState},
	{ErrGeneratorFailed, KindUpstreamFailure},
	{ErrInvalidQuestion, KindInvalid},
	{ErrInvalidQuiz, KindInvalid},
}

// KindOf reports the taxonomy kind of err, KindInternal when it wraps none of the sentinels.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// PublicMessage returns the message safe to show a viewer: the sentinel text, never the wrapped detail.
func PublicMessage(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			if k.err == ErrInvalidQuestion || k.err == ErrInvalidQuiz {
				// validation detail is produced by this service and is meant for the author
				return err.Error()
			}
			return k.err.Error()
		}
	}
	return "internal error"
}
