// Package memory holds in-process implementations of the app storage interfaces, used for local
// runs and tests.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"quiz-access-service/internal/domain"
)

// Store is an in-memory app.Store. Submission inserts are insert-if-absent on
// (quiz, submitter, attempt) under one lock, mirroring the unique index of the Postgres store.
type Store struct {
	mu          sync.RWMutex
	quizzes     map[string]domain.Quiz
	questions   map[string][]domain.Question
	submissions map[string]domain.Submission
	attempts    map[string]string
}

func NewStore() *Store {
	return &Store{
		quizzes:     make(map[string]domain.Quiz),
		questions:   make(map[string][]domain.Question),
		submissions: make(map[string]domain.Submission),
		attempts:    make(map[string]string),
	}
}

func (s *Store) CreateQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = quiz
	return nil
}

func (s *Store) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *Store) SetActive(_ context.Context, quizID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	quiz.Active = active
	s.quizzes[quizID] = quiz
	return nil
}

func (s *Store) SetTotalMarks(_ context.Context, quizID string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	quiz.TotalMarks = total
	s.quizzes[quizID] = quiz
	return nil
}

func (s *Store) DeleteQuiz(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return domain.ErrQuizNotFound
	}
	delete(s.quizzes, quizID)
	delete(s.questions, quizID)
	for id, sub := range s.submissions {
		if sub.QuizID == quizID {
			delete(s.submissions, id)
			delete(s.attempts, attemptKey(sub.QuizID, sub.SubmitterID, sub.AttemptNumber))
		}
	}
	return nil
}

func (s *Store) ListQuestions(_ context.Context, quizID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return nil, domain.ErrQuizNotFound
	}
	return append([]domain.Question(nil), s.questions[quizID]...), nil
}

func (s *Store) InsertQuestions(_ context.Context, quizID string, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return domain.ErrQuizNotFound
	}
	for _, q := range questions {
		q.QuizID = quizID
		s.questions[quizID] = append(s.questions[quizID], q)
	}
	return nil
}

func (s *Store) UpdateQuestion(_ context.Context, question domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.questions[question.QuizID]
	for i := range list {
		if list[i].ID == question.ID {
			list[i] = question
			return nil
		}
	}
	return domain.ErrQuestionNotFound
}

func (s *Store) DeleteQuestion(_ context.Context, quizID, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.questions[quizID]
	for i := range list {
		if list[i].ID == questionID {
			s.questions[quizID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return domain.ErrQuestionNotFound
}

func (s *Store) LatestAttempt(_ context.Context, quizID, submitterID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := 0
	for _, sub := range s.submissions {
		if sub.QuizID == quizID && sub.SubmitterID == submitterID && sub.AttemptNumber > latest {
			latest = sub.AttemptNumber
		}
	}
	return latest, nil
}

func (s *Store) InsertSubmission(_ context.Context, sub domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[sub.QuizID]; !ok {
		return domain.ErrQuizNotFound
	}
	key := attemptKey(sub.QuizID, sub.SubmitterID, sub.AttemptNumber)
	if _, taken := s.attempts[key]; taken {
		return domain.ErrAlreadySubmitted
	}
	sub.Items = append([]domain.GradedItem(nil), sub.Items...)
	s.attempts[key] = sub.ID
	s.submissions[sub.ID] = sub
	return nil
}

func (s *Store) GetSubmission(_ context.Context, submissionID string) (domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[submissionID]
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	return sub, nil
}

func (s *Store) ListSubmissions(_ context.Context, quizID string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Submission, 0)
	for _, sub := range s.submissions {
		if sub.QuizID == quizID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		if out[i].SubmitterID != out[j].SubmitterID {
			return out[i].SubmitterID < out[j].SubmitterID
		}
		return out[i].AttemptNumber < out[j].AttemptNumber
	})
	return out, nil
}

// LoadContent implements app.ContentLoader.
func (s *Store) LoadContent(_ context.Context, quizID string) (domain.QuizContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.QuizContent{}, domain.ErrQuizNotFound
	}
	return domain.QuizContent{
		Quiz:      quiz,
		Questions: append([]domain.Question(nil), s.questions[quizID]...),
	}, nil
}

func attemptKey(quizID, submitterID string, attempt int) string {
	return quizID + "|" + submitterID + "|" + strconv.Itoa(attempt)
}
