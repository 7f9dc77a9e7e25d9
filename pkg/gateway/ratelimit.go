package gateway

import (
	"errors"
	"sync"
	"time"
)

// RateLimitWindow is the length of one fixed counting window.
const RateLimitWindow = time.Minute

var ErrRateLimited = errors.New("gateway: rate limit exceeded")

type window struct {
	start time.Time
	count int
}

// RateLimiter counts calls per key in fixed windows.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	length  time.Duration
	now     func() time.Time
	windows map[string]*window
}

func NewRateLimiter(limit int) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimitPerMinute
	}

	return &RateLimiter{
		limit:   limit,
		length:  RateLimitWindow,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Allow records a call for key and reports whether it fits in the current
// window.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	w, ok := r.windows[key]
	if !ok || now.Sub(w.start) >= r.length {
		r.windows[key] = &window{start: now, count: 1}

		return true
	}

	if w.count >= r.limit {
		return false
	}

	w.count++

	return true
}

// Remaining returns how many calls key may still make in its window.
func (r *RateLimiter) Remaining(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[key]
	if !ok || r.now().Sub(w.start) >= r.length {
		return r.limit
	}

	return r.limit - w.count
}
