package memory

import (
	"sync"

	"quiz-access-service/internal/app"
)

// FeedStore is an in-memory implementation of app.FeedRepository.
type FeedStore struct {
	mu    sync.RWMutex
	feeds map[string]*app.ResultFeed
}

func NewFeedStore() *FeedStore {
	return &FeedStore{
		feeds: make(map[string]*app.ResultFeed),
	}
}

func (s *FeedStore) GetOrCreate(quizID string) *app.ResultFeed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if feed, ok := s.feeds[quizID]; ok {
		return feed
	}
	feed := app.NewResultFeed(quizID)
	s.feeds[quizID] = feed
	return feed
}

func (s *FeedStore) Get(quizID string) (*app.ResultFeed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feed, ok := s.feeds[quizID]
	return feed, ok
}

// DeleteIfIdle drops the feed once its last subscriber has gone.
func (s *FeedStore) DeleteIfIdle(quizID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed, ok := s.feeds[quizID]
	if !ok {
		return
	}
	if feed.Idle() {
		delete(s.feeds, quizID)
	}
}
