package stringbot

import (
	"sync"
	"time"
)

// attempt is the per-user record of an in-flight credential-elicitation
// flow. Fields are mutated only by the goroutine holding the user's lock.
type attempt struct {
	userID  int64
	stage   Stage
	started time.Time

	appID   int
	appHash string
	phone   string

	// codeHash correlates the one-time code with the provider's send; set
	// together with handle when the code request succeeds.
	codeHash string
	handle   ProviderHandle

	codeAttempts     int
	passwordAttempts int

	lastActivity time.Time
}

// attemptStore owns the in-memory attempt table and the per-user locks that
// serialize message handling. At most one attempt exists per user; the
// engine enforces this by routing every mutation through the user's lock.
type attemptStore struct {
	mu       sync.Mutex
	attempts map[int64]*attempt
	locks    map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newAttemptStore() *attemptStore {
	return &attemptStore{
		attempts: make(map[int64]*attempt),
		locks:    make(map[int64]*userLock),
	}
}

// lock acquires the per-user mutex and returns its release func. Locks are
// reference-counted so the map does not grow one entry per user forever.
// The store's own mutex is never held while waiting on a user lock.
func (s *attemptStore) lock(userID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.mu.Unlock()
	}
}

func (s *attemptStore) get(userID int64) *attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[userID]
}

func (s *attemptStore) put(a *attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[a.userID] = a
}

// remove deletes and returns the user's attempt, nil when none exists.
func (s *attemptStore) remove(userID int64) *attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.attempts[userID]
	delete(s.attempts, userID)
	return a
}

// touch refreshes the attempt's activity time. The caller holds the user
// lock; taking the store mutex as well makes the write safe against the
// sweeper's scan, which reads under the store mutex only.
func (s *attemptStore) touch(a *attempt, now time.Time) {
	s.mu.Lock()
	a.lastActivity = now
	s.mu.Unlock()
}

func (s *attemptStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

// idleBefore returns the users whose attempts saw no input since cutoff.
// Callers re-check idleness under the per-user lock before reaping; an
// attempt may receive input between this scan and the reap.
func (s *attemptStore) idleBefore(cutoff time.Time) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []int64
	for id, a := range s.attempts {
		if a.lastActivity.Before(cutoff) {
			users = append(users, id)
		}
	}
	return users
}

// drain removes and returns every attempt. Used on engine shutdown to
// release outstanding provider handles.
func (s *attemptStore) drain() []*attempt {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*attempt, 0, len(s.attempts))
	for _, a := range s.attempts {
		out = append(out, a)
	}
	s.attempts = make(map[int64]*attempt)
	return out
}
