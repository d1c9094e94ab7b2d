package app

import (
	"context"
	"fmt"
	"time"

	"quiz-access-service/internal/domain"
)

// Guard tracks the NotStarted -> Active -> Graded lifecycle of each (quiz, submitter) pair.
type Guard struct {
	submissions SubmissionStore
	activity    ActivityTracker
}

func NewGuard(submissions SubmissionStore, activity ActivityTracker) *Guard {
	return &Guard{submissions: submissions, activity: activity}
}

// AuthorizeAccess lets the owner through unconditionally; anyone else needs an active quiz
// assigned to them.
func (g *Guard) AuthorizeAccess(quiz domain.Quiz, viewer domain.Viewer) error {
	if quiz.OwnedBy(viewer.ID) {
		return nil
	}
	if !quiz.Active {
		return domain.ErrQuizInactive
	}
	if !quiz.Assignment.Includes(viewer) {
		return domain.ErrForbidden
	}
	return nil
}

// MarkActive starts an attempt period for a consumer that may still submit. The marker lives for
// the quiz duration.
func (g *Guard) MarkActive(ctx context.Context, quiz domain.Quiz, viewer domain.Viewer) error {
	if quiz.OwnedBy(viewer.ID) || viewer.IsTeacher() {
		return nil
	}
	latest, err := g.submissions.LatestAttempt(ctx, quiz.ID, viewer.ID)
	if err != nil {
		return err
	}
	if latest > 0 && !quiz.AllowsMultipleAttempts() {
		return nil
	}
	return g.activity.MarkActive(ctx, quiz.ID, viewer.ID, time.Duration(quiz.Duration)*time.Minute)
}

// AuthorizeSubmission checks eligibility and returns the attempt number the submission must be
// stored under. keySize is the number of questions in the grading key.
func (g *Guard) AuthorizeSubmission(ctx context.Context, quiz domain.Quiz, viewer domain.Viewer, keySize int) (int, error) {
	if err := g.AuthorizeAccess(quiz, viewer); err != nil {
		return 0, err
	}
	if quiz.OwnedBy(viewer.ID) || viewer.IsTeacher() {
		return 0, fmt.Errorf("%w: only assigned students submit", domain.ErrForbidden)
	}
	if keySize == 0 {
		return 0, domain.ErrNoQuestions
	}
	latest, err := g.submissions.LatestAttempt(ctx, quiz.ID, viewer.ID)
	if err != nil {
		return 0, err
	}
	if latest > 0 && !quiz.AllowsMultipleAttempts() {
		return 0, domain.ErrAlreadySubmitted
	}
	return latest + 1, nil
}

// Complete ends the active period after a stored submission.
func (g *Guard) Complete(ctx context.Context, quizID, viewerID string) error {
	return g.activity.Clear(ctx, quizID, viewerID)
}

// State reports where the viewer stands on the quiz.
func (g *Guard) State(ctx context.Context, quiz domain.Quiz, viewer domain.Viewer) (domain.AttemptStatus, error) {
	latest, err := g.submissions.LatestAttempt(ctx, quiz.ID, viewer.ID)
	if err != nil {
		return domain.AttemptStatus{}, err
	}
	active, err := g.activity.IsActive(ctx, quiz.ID, viewer.ID)
	if err != nil {
		return domain.AttemptStatus{}, err
	}
	status := domain.AttemptStatus{
		QuizID:    quiz.ID,
		State:     domain.StateNotStarted,
		Attempts:  latest,
		CanSubmit: g.AuthorizeAccess(quiz, viewer) == nil && !viewer.IsTeacher() && !quiz.OwnedBy(viewer.ID),
	}
	switch {
	case active:
		status.State = domain.StateActive
	case latest > 0:
		status.State = domain.StateGraded
	}
	if latest > 0 && !quiz.AllowsMultipleAttempts() {
		status.CanSubmit = false
	}
	return status, nil
}
