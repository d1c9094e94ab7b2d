package app

import (
	"sort"
	"sync"
	"time"

	"quiz-access-service/internal/domain"
)

// ResultFeed keeps each submitter's best attempt on one quiz and pushes the ordered board to
// subscribed owners.
type ResultFeed struct {
	id          string
	now         func() time.Time
	mu          sync.RWMutex
	entries     map[string]domain.ResultEntry
	seeded      bool
	subscribers map[chan domain.ResultBoard]struct{}
}

func NewResultFeed(quizID string) *ResultFeed {
	return NewResultFeedWithClock(quizID, time.Now)
}

// NewResultFeedWithClock is test-only for deterministic timestamps.
func NewResultFeedWithClock(quizID string, now func() time.Time) *ResultFeed {
	return &ResultFeed{
		id:          quizID,
		now:         now,
		entries:     make(map[string]domain.ResultEntry),
		subscribers: make(map[chan domain.ResultBoard]struct{}),
	}
}

// Seed loads stored submissions once; later calls are no-ops.
func (f *ResultFeed) Seed(submissions []domain.Submission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seeded {
		return
	}
	f.seeded = true
	for _, s := range submissions {
		f.recordLocked(s.ResultEntry())
	}
}

func (f *ResultFeed) Seeded() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.seeded
}

// Record adds a graded submission and broadcasts the new board.
func (f *ResultFeed) Record(s domain.Submission) domain.ResultBoard {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordLocked(s.ResultEntry())
	return f.broadcastLocked()
}

func (f *ResultFeed) recordLocked(entry domain.ResultEntry) {
	current, ok := f.entries[entry.SubmitterID]
	if !ok || better(entry, current) {
		f.entries[entry.SubmitterID] = entry
	}
}

// better prefers a higher score, then the earlier submission.
func better(a, b domain.ResultEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.SubmittedAt.Before(b.SubmittedAt)
}

func (f *ResultFeed) Subscribe() (<-chan domain.ResultBoard, func()) {
	ch := make(chan domain.ResultBoard, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	initial := f.snapshotLocked()
	f.mu.Unlock()

	ch <- initial

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Idle reports whether nobody is listening.
func (f *ResultFeed) Idle() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers) == 0
}

func (f *ResultFeed) Snapshot() domain.ResultBoard {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshotLocked()
}

func (f *ResultFeed) broadcastLocked() domain.ResultBoard {
	board := f.snapshotLocked()
	for ch := range f.subscribers {
		select {
		case ch <- board:
		default:
			// slow subscriber: replace its oldest pending board
			select {
			case <-ch:
			default:
			}
			ch <- board
		}
	}
	return board
}

func (f *ResultFeed) snapshotLocked() domain.ResultBoard {
	entries := make([]domain.ResultEntry, 0, len(f.entries))
	for _, e := range f.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score || !entries[i].SubmittedAt.Equal(entries[j].SubmittedAt) {
			return better(entries[i], entries[j])
		}
		return entries[i].SubmitterID < entries[j].SubmitterID
	})
	return domain.ResultBoard{
		QuizID:    f.id,
		Entries:   entries,
		UpdatedAt: f.now(),
	}
}
