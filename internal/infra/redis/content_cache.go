package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-access-service/internal/app"
	"quiz-access-service/internal/domain"
)

// ContentCache caches quiz content, grading key included, in Redis and falls back to a loader on
// cache miss. Content is stored as JSON under quiz:{quizID}:content. Invalidate bumps a counter
// under quiz:{quizID}:content:gen; a load that started before the bump is not written back.
type ContentCache struct {
	client *redis.Client
	loader app.ContentLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewContentCache(client *redis.Client, loader app.ContentLoader, ttl time.Duration) *ContentCache {
	return &ContentCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ContentCache) GetContent(ctx context.Context, quizID string) (domain.QuizContent, error) {
	if content, ok := c.read(ctx, quizID); ok {
		return content, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if content, ok := c.read(ctx, quizID); ok {
			return content, nil
		}

		gen, genErr := c.generation(ctx, c.client, quizID)

		content, err := c.loader.LoadContent(ctx, quizID)
		if err != nil {
			return domain.QuizContent{}, err
		}
		if genErr == nil {
			// best-effort fill; the loaded content is served either way
			_ = c.fill(ctx, quizID, gen, content)
		}
		return content, nil
	})
	if err != nil {
		return domain.QuizContent{}, err
	}
	return result.(domain.QuizContent), nil
}

func (c *ContentCache) Invalidate(ctx context.Context, quizID string) error {
	c.sf.Forget(quizID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey(quizID))
		pipe.Del(ctx, c.key(quizID))
		return nil
	})
	return err
}

var errStaleLoad = errors.New("content invalidated during load")

// fill stores content only while the generation is still gen.
func (c *ContentCache) fill(ctx context.Context, quizID string, gen int64, content domain.QuizContent) error {
	data, err := json.Marshal(content)
	if err != nil {
		return err
	}
	return c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.generation(ctx, tx, quizID)
		if err != nil {
			return err
		}
		if current != gen {
			return errStaleLoad
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(quizID), data, c.ttlWithJitter())
			return nil
		})
		return err
	}, c.genKey(quizID))
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (c *ContentCache) generation(ctx context.Context, cmd getter, quizID string) (int64, error) {
	gen, err := cmd.Get(ctx, c.genKey(quizID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *ContentCache) read(ctx context.Context, quizID string) (domain.QuizContent, bool) {
	data, err := c.client.Get(ctx, c.key(quizID)).Bytes()
	if err != nil {
		return domain.QuizContent{}, false
	}
	var content domain.QuizContent
	if err := json.Unmarshal(data, &content); err != nil {
		// corrupt entry: drop it and reload
		_ = c.client.Del(ctx, c.key(quizID)).Err()
		return domain.QuizContent{}, false
	}
	return content, true
}

func (c *ContentCache) key(quizID string) string {
	return "quiz:" + quizID + ":content"
}

func (c *ContentCache) genKey(quizID string) string {
	return c.key(quizID) + ":gen"
}

func (c *ContentCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

