package httpx

import (
	"context"
	"sync"
	"time"
)

const memoryLimiterSweep = 5 * time.Minute

type window struct {
	count   int
	resetAt time.Time
}

// memoryRateLimiter keeps counters in process. It suits a single API replica.
type memoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]window
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryRateLimiter returns an in-process limiter with a background sweeper.
func NewMemoryRateLimiter() RateLimiter {
	return newMemoryRateLimiter(time.Now, memoryLimiterSweep)
}

func newMemoryRateLimiter(now func() time.Time, sweep time.Duration) *memoryRateLimiter {
	rl := &memoryRateLimiter{
		windows: make(map[string]window),
		now:     now,
		stop:    make(chan struct{}),
	}
	if sweep > 0 {
		go rl.sweep(sweep)
	}
	return rl
}

func (rl *memoryRateLimiter) Allow(_ context.Context, key string, limit int, period time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if period <= 0 {
		period = time.Minute
	}
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	w := rl.windows[key]
	if !now.Before(w.resetAt) {
		w = window{resetAt: now.Add(period)}
	}
	if w.count >= limit {
		return rateDecision{count: w.count, resetAt: w.resetAt}
	}
	w.count++
	rl.windows[key] = w
	return rateDecision{allowed: true, count: w.count, resetAt: w.resetAt}
}

func (rl *memoryRateLimiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictExpired()
		}
	}
}

func (rl *memoryRateLimiter) evictExpired() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, key)
		}
	}
}

func (rl *memoryRateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

func (rl *memoryRateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}
