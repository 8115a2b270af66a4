package stringbot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testSessionString = "1BVtsOIDBu1ZI2Wn4k5QxTests"

type fakeHandle struct {
	released bool
}

// fakeProvider is a scriptable AuthProvider that tracks handle lifetimes so
// tests can assert every exit path releases what it connected.
type fakeProvider struct {
	mu sync.Mutex

	code     string
	password string // non-empty makes VerifyCode demand a second factor

	connectErr error
	requestErr error
	verifyErr  error

	panicOnVerify bool

	connects int
	releases int
	live     int
	maxLive  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{code: "12345"}
}

func (p *fakeProvider) Connect(_ context.Context, appID int, appHash string) (ProviderHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	if appID <= 0 || appHash == "" {
		return nil, ErrProviderInvalidCredentials
	}
	p.connects++
	p.live++
	if p.live > p.maxLive {
		p.maxLive = p.live
	}
	return &fakeHandle{}, nil
}

func (p *fakeProvider) RequestCode(_ context.Context, handle ProviderHandle, _ string) (string, error) {
	if err := p.check(handle); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.requestErr != nil {
		return "", p.requestErr
	}
	return "code-hash-1", nil
}

func (p *fakeProvider) VerifyCode(_ context.Context, handle ProviderHandle, code, codeHash string) (*VerifyResult, error) {
	if err := p.check(handle); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicOnVerify {
		panic("provider exploded")
	}
	if p.verifyErr != nil {
		return nil, p.verifyErr
	}
	if codeHash != "code-hash-1" {
		return nil, ErrProviderCodeExpired
	}
	if code != p.code {
		return nil, ErrProviderInvalidCode
	}
	if p.password != "" {
		return &VerifyResult{SecondFactorRequired: true}, nil
	}
	return &VerifyResult{Identity: 424242, SessionString: testSessionString}, nil
}

func (p *fakeProvider) VerifySecondFactor(_ context.Context, handle ProviderHandle, password string) (*VerifyResult, error) {
	if err := p.check(handle); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if password != p.password {
		return nil, ErrProviderSecondFactorInvalid
	}
	return &VerifyResult{Identity: 424242, SessionString: testSessionString}, nil
}

func (p *fakeProvider) Release(_ context.Context, handle ProviderHandle) error {
	h, ok := handle.(*fakeHandle)
	if !ok {
		return errors.New("unknown handle type")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if h.released {
		return errors.New("double release")
	}
	h.released = true
	p.releases++
	p.live--
	return nil
}

func (p *fakeProvider) check(handle ProviderHandle) error {
	h, ok := handle.(*fakeHandle)
	if !ok || h.released {
		return ErrProviderUnavailable
	}
	return nil
}

func (p *fakeProvider) liveHandles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

func (p *fakeProvider) maxLiveHandles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxLive
}

type fakeMessenger struct {
	mu      sync.Mutex
	replies map[int64][]string
	notices []string
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{replies: make(map[int64][]string)}
}

func (m *fakeMessenger) Reply(_ context.Context, userID int64, text string, _ ...Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[userID] = append(m.replies[userID], text)
	return nil
}

func (m *fakeMessenger) NotifyAuditChannel(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, text)
	return nil
}

func (m *fakeMessenger) lastReply(userID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	replies := m.replies[userID]
	if len(replies) == 0 {
		return ""
	}
	return replies[len(replies)-1]
}

func (m *fakeMessenger) allReplies(userID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.replies[userID]...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, event AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) all() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEvent(nil), s.events...)
}

func (s *recordingSink) byType(eventType string) []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEvent
	for _, event := range s.events {
		if event.EventType == eventType {
			out = append(out, event)
		}
	}
	return out
}

type testEnv struct {
	engine    *Engine
	provider  *fakeProvider
	messenger *fakeMessenger
	sink      *recordingSink
	client    *redis.Client
}

// newTestEngine builds an engine over miniredis. The rate limiter is off by
// default so multi-message flows do not trip it; tests that exercise limiting
// turn it back on through mutate.
func newTestEngine(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := DefaultConfig()
	cfg.Crypto.Passphrase = "test-passphrase"
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		provider:  newFakeProvider(),
		messenger: newFakeMessenger(),
		sink:      &recordingSink{},
		client:    client,
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithAuthProvider(env.provider).
		WithMessenger(env.messenger).
		WithAuditSink(env.sink).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	env.engine = engine

	t.Cleanup(func() {
		engine.Close()
		client.Close()
		mr.Close()
	})
	return env
}

func (env *testEnv) send(t *testing.T, userID int64, text string) {
	t.Helper()
	if err := env.engine.HandleInput(context.Background(), userID, text); err != nil {
		t.Fatalf("handle %q: %v", text, err)
	}
}

// runToCode drives a fresh flow up to the code prompt.
func (env *testEnv) runToCode(t *testing.T, userID int64) {
	t.Helper()
	env.send(t, userID, "/generate")
	env.send(t, userID, "12345")
	env.send(t, userID, "0123456789abcdef")
	env.send(t, userID, "+14155550123")
	if got := env.messenger.lastReply(userID); got != replyAskCode {
		t.Fatalf("expected code prompt, got %q", got)
	}
}

func assertNoSecretsInAudit(t *testing.T, sink *recordingSink) {
	t.Helper()
	for _, event := range sink.all() {
		if event.Error != "" && strings.Contains(event.Error, testSessionString) {
			t.Fatalf("session string leaked into audit error: %+v", event)
		}
		for k, v := range event.Metadata {
			if strings.Contains(v, testSessionString) {
				t.Fatalf("session string leaked into audit metadata %s: %+v", k, event)
			}
			if strings.Contains(v, "4155550123") {
				t.Fatalf("unredacted phone leaked into audit metadata %s: %+v", k, event)
			}
		}
	}
}
