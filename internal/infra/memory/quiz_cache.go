package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"quiz-session-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Catalog resolves quiz content from a backing store.
type Catalog interface {
	FindByAccessCode(ctx context.Context, accessCode string) (domain.Quiz, error)
}

// QuizCache caches quizzes by access code with a TTL to avoid repeated
// catalog hits on the read path. Quizzes are read-only to the quiz-taking
// core, so staleness is bounded by the TTL.
type QuizCache struct {
	catalog Catalog
	ttl     time.Duration
	clock   func() time.Time
	sf      singleflight.Group
	rnd     *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizCache(catalog Catalog, ttl time.Duration) *QuizCache {
	return &QuizCache{
		catalog: catalog,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:   make(map[string]cachedQuiz),
	}
}

func (c *QuizCache) FindByAccessCode(ctx context.Context, accessCode string) (domain.Quiz, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[accessCode]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.quiz, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(accessCode, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[accessCode]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.quiz, nil
		}
		c.mu.RUnlock()

		quiz, err := c.catalog.FindByAccessCode(ctx, accessCode)
		if err != nil {
			return domain.Quiz{}, err
		}

		c.mu.Lock()
		c.cache[accessCode] = cachedQuiz{
			quiz:      quiz,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
