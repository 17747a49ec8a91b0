package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
)

// RateLimiter counts hits for (scope, subject) within a fixed window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RateLimitError carries the retry hint for a rejected submission.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s; retry after %ds", domain.ErrRateLimited, e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error { return domain.ErrRateLimited }

// RetryAfter extracts the retry hint from a rate limit error, or 0.
func RetryAfter(err error) int {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfterSeconds
	}
	return 0
}

// MemoryRateLimiter is the in-process limiter used when Redis is not configured.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
	now     func() time.Time
}

type fixedWindow struct {
	count     int
	expiresAt time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{windows: make(map[string]*fixedWindow), now: time.Now}
}

func (m *MemoryRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if m == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	key := scope + ":" + subject
	w, ok := m.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = &fixedWindow{expiresAt: now.Add(window)}
		m.windows[key] = w
		m.sweepLocked(now)
	}
	w.count++
	return w.count, retryAfterFromMillis(w.expiresAt.Sub(now).Milliseconds()), nil
}

func (m *MemoryRateLimiter) sweepLocked(now time.Time) {
	for key, w := range m.windows {
		if !now.Before(w.expiresAt) {
			delete(m.windows, key)
		}
	}
}
