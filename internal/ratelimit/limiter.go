package ratelimit

import (
	"sync"
	"time"
)

// Scope decides how callers share a window.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeCaller Scope = "caller"

	globalKey = "*"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the oldest request leaves the window.
	// Zero when Allowed.
	RetryAfter time.Duration
}

// SlidingWindowLimiter keeps a log of request times per key and admits at
// most limit of them inside any trailing window.
type SlidingWindowLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	window  time.Duration
	scope   Scope
	now     func() time.Time
}

type Option func(*SlidingWindowLimiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *SlidingWindowLimiter) { l.now = now }
}

func WithScope(scope Scope) Option {
	return func(l *SlidingWindowLimiter) { l.scope = scope }
}

func NewSlidingWindowLimiter(limit int, window time.Duration, opts ...Option) *SlidingWindowLimiter {
	l := &SlidingWindowLimiter{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		scope:   ScopeCaller,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow prunes the key's log and records the request if there is room.
// Rejected requests are not recorded.
func (l *SlidingWindowLimiter) Allow(key string) Decision {
	key = l.key(key)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	requests := l.prune(key, now)
	if len(requests) >= l.limit {
		var retry time.Duration
		if len(requests) > 0 {
			retry = requests[0].Add(l.window).Sub(now)
		}
		if retry <= 0 {
			retry = time.Millisecond
		}
		return Decision{Allowed: false, Limit: l.limit, Remaining: 0, RetryAfter: retry}
	}

	requests = append(requests, now)
	l.windows[key] = requests
	return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - len(requests)}
}

// Remaining reports how many requests key could still make without
// recording anything.
func (l *SlidingWindowLimiter) Remaining(key string) int {
	key = l.key(key)

	l.mu.Lock()
	defer l.mu.Unlock()
	return max(l.limit-len(l.prune(key, l.now())), 0)
}

func (l *SlidingWindowLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, l.key(key))
}

// prune drops timestamps older than the window. Caller holds mu.
func (l *SlidingWindowLimiter) prune(key string, now time.Time) []time.Time {
	requests := l.windows[key]
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(requests) && !requests[i].After(cutoff) {
		i++
	}
	requests = requests[i:]
	if len(requests) == 0 {
		delete(l.windows, key)
		return nil
	}
	l.windows[key] = requests
	return requests
}

func (l *SlidingWindowLimiter) key(key string) string {
	if l.scope == ScopeGlobal || key == "" {
		return globalKey
	}
	return key
}
