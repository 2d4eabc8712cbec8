package app

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

const (
	accessCodeLength   = 8
	accessCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// CodeChecker reports whether an access code is already taken by some quiz.
type CodeChecker interface {
	AccessCodeExists(ctx context.Context, code string) (bool, error)
}

// AccessCodeGenerator produces short public codes that do not collide with
// any existing quiz. It draws candidates until the checker reports a free
// one; the code space (36^8) makes collisions rare enough that no retry cap
// is applied.
type AccessCodeGenerator struct {
	checker CodeChecker

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewAccessCodeGenerator(checker CodeChecker) *AccessCodeGenerator {
	return &AccessCodeGenerator{
		checker: checker,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Generate returns a code that is not currently used by any quiz. The code
// is not reserved; the caller is expected to persist it promptly.
func (g *AccessCodeGenerator) Generate(ctx context.Context) (string, error) {
	for {
		code := g.randomCode()
		exists, err := g.checker.AccessCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
}

func (g *AccessCodeGenerator) randomCode() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	buf := make([]byte, accessCodeLength)
	for i := range buf {
		buf[i] = accessCodeAlphabet[g.rnd.Intn(len(accessCodeAlphabet))]
	}
	return string(buf)
}
