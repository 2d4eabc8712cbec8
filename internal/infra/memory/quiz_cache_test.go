package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-session-service/internal/domain"
)

func TestQuizCacheCaches(t *testing.T) {
	catalog := newCountingCatalog(t)
	cache := NewQuizCache(catalog, time.Minute)

	if _, err := cache.FindByAccessCode(context.Background(), "CACHED01"); err != nil {
		t.Fatalf("find quiz: %v", err)
	}
	if catalog.calls != 1 {
		t.Fatalf("expected one catalog hit, got %d", catalog.calls)
	}

	if _, err := cache.FindByAccessCode(context.Background(), "CACHED01"); err != nil {
		t.Fatalf("find quiz 2: %v", err)
	}
	if catalog.calls != 1 {
		t.Fatalf("expected cache hit, catalog calls %d", catalog.calls)
	}
}

func TestQuizCacheExpires(t *testing.T) {
	catalog := newCountingCatalog(t)
	cache := NewQuizCache(catalog, time.Minute)

	now := time.Now()
	cache.clock = func() time.Time { return now }

	if _, err := cache.FindByAccessCode(context.Background(), "CACHED01"); err != nil {
		t.Fatalf("find quiz: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := cache.FindByAccessCode(context.Background(), "CACHED01"); err != nil {
		t.Fatalf("find quiz after expiry: %v", err)
	}
	if catalog.calls != 2 {
		t.Fatalf("expected reload after expiry, catalog calls %d", catalog.calls)
	}
}

func TestQuizCacheMissesPassThrough(t *testing.T) {
	catalog := newCountingCatalog(t)
	cache := NewQuizCache(catalog, time.Minute)

	_, err := cache.FindByAccessCode(context.Background(), "MISSING1")
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}

	// Misses are not cached.
	if _, err := cache.FindByAccessCode(context.Background(), "MISSING1"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound again, got %v", err)
	}
	if catalog.calls != 2 {
		t.Fatalf("expected both misses to reach the catalog, got %d calls", catalog.calls)
	}
}

type countingCatalog struct {
	store *QuizStore
	calls int
}

func (c *countingCatalog) FindByAccessCode(ctx context.Context, code string) (domain.Quiz, error) {
	c.calls++
	return c.store.FindByAccessCode(ctx, code)
}

func newCountingCatalog(t *testing.T) *countingCatalog {
	t.Helper()
	store := NewQuizStore(nil)
	quiz := domain.Quiz{
		Title:      "Cached",
		AccessCode: "CACHED01",
		Questions: []domain.Question{
			{Text: "q", Type: domain.QuestionFreeText, Order: 1, CorrectText: "a"},
		},
	}
	if err := store.Create(context.Background(), &quiz); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	return &countingCatalog{store: store}
}
