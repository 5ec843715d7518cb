package intake

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultRateLimit       = 100
	DefaultRateLimitWindow = 15 * time.Minute
)

// RateLimiter decides whether a caller may submit another request within a
// rolling window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// memoryRateLimiter keeps a sliding log of request times per key.
type memoryRateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
}

func NewMemoryRateLimiter(limit int, window time.Duration) RateLimiter {
	return &memoryRateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

func (l *memoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	if now.Sub(l.lastSweep) > l.window {
		l.sweep(cutoff)
		l.lastSweep = now
	}

	hits := prune(l.hits[key], cutoff)
	if len(hits) >= l.limit {
		l.hits[key] = hits
		return false, nil
	}

	l.hits[key] = append(hits, now)

	return true, nil
}

func (l *memoryRateLimiter) sweep(cutoff time.Time) {
	for key, hits := range l.hits {
		if hits = prune(hits, cutoff); len(hits) == 0 {
			delete(l.hits, key)
		} else {
			l.hits[key] = hits
		}
	}
}

// prune drops the hits that are older than cutoff; hits are in ascending order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}

	return hits[i:]
}
