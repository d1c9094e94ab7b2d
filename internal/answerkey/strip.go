// Package answerkey separates the public view of a question from its grading key.
package answerkey

import (
	"math/rand"
	"sync"
	"time"

	"quiz-access-service/internal/domain"
)

// PublicQuestion is the only question shape serialized to a non-owner viewer. It has no field that
// can carry a correct answer.
type PublicQuestion struct {
	ID         string              `json:"id"`
	Type       domain.QuestionType `json:"type"`
	Text       string              `json:"text"`
	Marks      int                 `json:"marks"`
	Options    []string            `json:"options,omitempty"`
	BlankCount int                 `json:"blankCount,omitempty"`
	Left       []string            `json:"left,omitempty"`
	Right      []string            `json:"right,omitempty"`
}

// Shuffler permutes n elements in place; *rand.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// Strip drops every answer field of q. Matching questions get their right column shuffled by s.
func Strip(q domain.Question, s Shuffler) PublicQuestion {
	pub := PublicQuestion{
		ID:    q.ID,
		Type:  q.Type(),
		Text:  q.Text,
		Marks: q.Marks,
	}
	switch p := q.Payload.(type) {
	case domain.SingleChoice:
		pub.Options = append([]string(nil), p.Options...)
	case domain.TrueFalse:
		pub.Options = append([]string(nil), domain.TrueFalseOptions...)
	case domain.FreeText:
	case domain.FillBlank:
		pub.BlankCount = len(p.Blanks)
	case domain.Matching:
		pub.Left = make([]string, len(p.Pairs))
		pub.Right = make([]string, len(p.Pairs))
		for i, pair := range p.Pairs {
			pub.Left[i] = pair.Left
			pub.Right[i] = pair.Right
		}
		s.Shuffle(len(pub.Right), func(i, j int) {
			pub.Right[i], pub.Right[j] = pub.Right[j], pub.Right[i]
		})
	}
	return pub
}

// StripAll strips a whole set, preserving order.
func StripAll(questions []domain.Question, s Shuffler) []PublicQuestion {
	out := make([]PublicQuestion, 0, len(questions))
	for _, q := range questions {
		out = append(out, Strip(q, s))
	}
	return out
}

// lockedRand makes a *rand.Rand safe to share between requests.
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewShuffler returns a goroutine-safe pseudo-random shuffler. The order is for presentation only.
func NewShuffler() Shuffler {
	return &lockedRand{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (l *lockedRand) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rnd.Shuffle(n, swap)
}
