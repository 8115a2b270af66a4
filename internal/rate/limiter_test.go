package rate

import (
	"testing"
	"time"
)

func newTestLimiter(start time.Time) (*Limiter, *time.Time) {
	current := start
	l := New(Config{Window: 60 * time.Second, MaxRequests: 5})
	l.now = func() time.Time { return current }
	return l, &current
}

func TestAllowWithinBudget(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1000, 0))

	for i := 0; i < 5; i++ {
		if !l.Allow(7) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow(7) {
		t.Fatalf("sixth request inside the window must be denied")
	}
}

func TestDenialDoesNotExtendWindow(t *testing.T) {
	l, current := newTestLimiter(time.Unix(1000, 0))

	for i := 0; i < 5; i++ {
		l.Allow(7)
	}
	// Hammering while denied must not push the window forward.
	for i := 0; i < 10; i++ {
		*current = current.Add(time.Second)
		if l.Allow(7) {
			t.Fatalf("request during cooldown must be denied")
		}
	}

	*current = time.Unix(1000, 0).Add(61 * time.Second)
	if !l.Allow(7) {
		t.Fatalf("request after the first entry expired must be allowed")
	}
}

func TestSlidingExpiry(t *testing.T) {
	l, current := newTestLimiter(time.Unix(1000, 0))

	// Two early requests, three late ones.
	l.Allow(7)
	l.Allow(7)
	*current = current.Add(50 * time.Second)
	l.Allow(7)
	l.Allow(7)
	l.Allow(7)
	if l.Allow(7) {
		t.Fatalf("budget is spent")
	}

	// 11 seconds later the two early entries fall out; two slots open.
	*current = current.Add(11 * time.Second)
	if !l.Allow(7) {
		t.Fatalf("first freed slot should be allowed")
	}
	if !l.Allow(7) {
		t.Fatalf("second freed slot should be allowed")
	}
	if l.Allow(7) {
		t.Fatalf("no third slot should be free")
	}
}

func TestUsersAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1000, 0))

	for i := 0; i < 5; i++ {
		l.Allow(7)
	}
	if l.Allow(7) {
		t.Fatalf("user 7 is exhausted")
	}
	if !l.Allow(8) {
		t.Fatalf("user 8 has an untouched budget")
	}
}

func TestResetClearsUser(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1000, 0))

	for i := 0; i < 5; i++ {
		l.Allow(7)
	}
	l.Reset(7)
	if !l.Allow(7) {
		t.Fatalf("reset must restore the budget")
	}
	if got := l.TrackedUsers(); got != 1 {
		t.Fatalf("expected 1 tracked user, got %d", got)
	}
}
