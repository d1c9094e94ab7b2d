package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-access-service/internal/app"
	"quiz-access-service/internal/domain"
)

// ContentCache keeps quiz content with a TTL in front of a loader. A load that overlaps an
// Invalidate of the same quiz is served to its callers but not cached.
type ContentCache struct {
	loader app.ContentLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedContent
	// gens counts invalidations per quiz.
	gens map[string]uint64
}

type cachedContent struct {
	content   domain.QuizContent
	expiresAt time.Time
}

func NewContentCache(loader app.ContentLoader, ttl time.Duration) *ContentCache {
	return &ContentCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedContent),
		gens:   make(map[string]uint64),
	}
}

func (c *ContentCache) GetContent(ctx context.Context, quizID string) (domain.QuizContent, error) {
	if content, ok := c.lookup(quizID); ok {
		return content, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		if content, ok := c.lookup(quizID); ok {
			return content, nil
		}

		c.mu.RLock()
		gen := c.gens[quizID]
		c.mu.RUnlock()

		content, err := c.loader.LoadContent(ctx, quizID)
		if err != nil {
			return domain.QuizContent{}, err
		}

		c.mu.Lock()
		if c.ttl > 0 && c.gens[quizID] == gen {
			c.cache[quizID] = cachedContent{
				content:   content,
				expiresAt: c.clock().Add(c.ttlWithJitterLocked()),
			}
		}
		c.mu.Unlock()
		return content, nil
	})
	if err != nil {
		return domain.QuizContent{}, err
	}
	return result.(domain.QuizContent), nil
}

// Invalidate drops the cached entry so the next read reloads it.
func (c *ContentCache) Invalidate(_ context.Context, quizID string) error {
	c.mu.Lock()
	delete(c.cache, quizID)
	c.gens[quizID]++
	c.mu.Unlock()
	c.sf.Forget(quizID)
	return nil
}

func (c *ContentCache) lookup(quizID string) (domain.QuizContent, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[quizID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.QuizContent{}, false
	}
	return entry.content, true
}

func (c *ContentCache) ttlWithJitterLocked() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
