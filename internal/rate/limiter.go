package rate

import (
	"sync"
	"time"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	Window      time.Duration
	MaxRequests int
}

// Limiter enforces a per-user sliding-window request budget. State is
// process-local and vanishes on restart; a denied check records nothing, so
// a user who backs off recovers as soon as old entries age out of the
// window.
type Limiter struct {
	mu      sync.Mutex
	config  Config
	windows map[int64][]time.Time

	// now is swappable in tests.
	now func() time.Time
}

// New creates a [Limiter] with the given window and budget.
func New(cfg Config) *Limiter {
	return &Limiter{
		config:  cfg,
		windows: make(map[int64][]time.Time),
		now:     time.Now,
	}
}

// Allow reports whether the user may proceed. It prunes entries older than
// the trailing window, denies without recording when the budget is spent,
// and otherwise records the request instant.
func (l *Limiter) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.config.Window)

	window := l.windows[userID]
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.config.MaxRequests {
		l.windows[userID] = kept
		return false
	}

	l.windows[userID] = append(kept, now)
	return true
}

// Reset clears the recorded window for a user.
func (l *Limiter) Reset(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, userID)
}

// TrackedUsers returns how many users currently hold non-empty windows.
// Stale windows are not pruned here; the count is an upper bound used for
// owner statistics only.
func (l *Limiter) TrackedUsers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
