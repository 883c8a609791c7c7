package relay

import (
	"sync"
	"time"
)

// CallRateLimiter caps call attempts per station number in a sliding window.
type CallRateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

// NewCallRateLimiter returns a limiter; a non-positive limit disables it.
func NewCallRateLimiter(limit int, interval time.Duration) *CallRateLimiter {
	return &CallRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *CallRateLimiter) Allow(number string) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[number]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[number] = fresh
		return false
	}
	rl.history[number] = append(fresh, now)
	return true
}

// Forget drops the history of a station that went offline.
func (rl *CallRateLimiter) Forget(number string) {
	rl.mu.Lock()
	delete(rl.history, number)
	rl.mu.Unlock()
}
