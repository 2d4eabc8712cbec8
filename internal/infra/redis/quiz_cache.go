package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"quiz-session-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Catalog resolves quiz content from a backing store.
type Catalog interface {
	FindByAccessCode(ctx context.Context, accessCode string) (domain.Quiz, error)
}

// QuizCache is a read-through Redis cache over the quiz catalog, keyed by
// access code: GET quiz:code:{accessCode} -> full quiz JSON. Misses are
// collapsed with singleflight so a popular quiz hits the backing store once.
type QuizCache struct {
	client *redis.Client
	source Catalog
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuizCache(client *redis.Client, source Catalog, ttl time.Duration) *QuizCache {
	return &QuizCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuizCache) FindByAccessCode(ctx context.Context, accessCode string) (domain.Quiz, error) {
	key := c.key(accessCode)

	if quiz, ok := c.lookup(ctx, key); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(accessCode, func() (interface{}, error) {
		// Re-check the cache in case another goroutine filled it.
		if quiz, ok := c.lookup(ctx, key); ok {
			return quiz, nil
		}

		quiz, err := c.source.FindByAccessCode(ctx, accessCode)
		if err != nil {
			return domain.Quiz{}, err
		}

		if data, err := json.Marshal(quiz); err == nil {
			// Best-effort cache fill; a failed SET only costs a future miss.
			_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *QuizCache) lookup(ctx context.Context, key string) (domain.Quiz, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(data, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (c *QuizCache) key(accessCode string) string {
	return "quiz:code:" + accessCode
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
