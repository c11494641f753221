package cache

import (
	"context"
	"sync"
	"time"
)

// Counter is a fixed-window hit counter used by the rate limiter. Incr records
// one hit for key and returns the running count together with the time left
// before the window resets.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type window struct {
	count   int64
	resetAt time.Time
}

type MemoryCounter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]window
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{now: time.Now, windows: make(map[string]window)}
}

func (c *MemoryCounter) Incr(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = window{resetAt: now.Add(ttl)}
	}
	w.count++
	c.windows[key] = w

	if len(c.windows) > 4096 {
		c.sweep(now)
	}
	return w.count, w.resetAt.Sub(now), nil
}

// sweep drops expired windows. Caller holds mu.
func (c *MemoryCounter) sweep(now time.Time) {
	for key, w := range c.windows {
		if !now.Before(w.resetAt) {
			delete(c.windows, key)
		}
	}
}
