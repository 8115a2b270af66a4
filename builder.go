package stringbot

import (
	"errors"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/alphauser-don/string-bot/internal/rate"
	"github.com/alphauser-don/string-bot/internal/secret"
	"github.com/alphauser-don/string-bot/session"
)

// Builder defines a public type used by string-bot APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	provider  AuthProvider
	messenger Messenger
	auditSink AuditSink
	logger    *log.Logger

	built bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuthProvider describes the withauthprovider operation and its observable behavior.
//
// WithAuthProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuthProvider(p AuthProvider) *Builder {
	b.provider = p
	return b
}

// WithMessenger describes the withmessenger operation and its observable behavior.
//
// WithMessenger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMessenger(m Messenger) *Builder {
	b.messenger = m
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
//
// WithLogger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLogger(logger *log.Logger) *Builder {
	b.logger = logger
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.provider == nil {
		return nil, errors.New("auth provider required")
	}

	if b.messenger == nil {
		return nil, errors.New("messenger required")
	}

	// -------- CRYPTO --------
	var box *secret.Box
	var err error
	if len(cfg.Crypto.Key) > 0 {
		box, err = secret.NewBox(cfg.Crypto.Key)
	} else {
		box, err = secret.NewBoxFromPassphrase(cfg.Crypto.Passphrase)
	}
	if err != nil {
		return nil, err
	}

	// -------- SESSION STORE --------
	store := session.NewStore(b.redis, cfg.Sessions.RedisPrefix, cfg.Sessions.MaxPerUser)

	engine := &Engine{
		config:    cloneConfig(cfg),
		store:     store,
		box:       box,
		attempts:  newAttemptStore(),
		provider:  b.provider,
		messenger: b.messenger,
		logger:    b.logger,
		done:      make(chan struct{}),
	}

	if cfg.RateLimit.Enabled {
		engine.limiter = rate.New(rate.Config{
			Window:      cfg.RateLimit.Window,
			MaxRequests: cfg.RateLimit.MaxRequests,
		})
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)

	if cfg.Metrics.Enabled {
		engine.metrics = newMetrics()
	}

	engine.startSweeper()

	b.built = true

	return engine, nil
}
