package stringbot

import (
	"errors"
	"time"
)

// Config defines a public type used by string-bot APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Flow      FlowConfig
	RateLimit RateLimitConfig
	Sessions  SessionsConfig
	Crypto    CryptoConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Owner     OwnerConfig
}

/*
====================================
FLOW CONFIG
====================================
*/

// FlowConfig tunes the credential-elicitation state machine.
//
// FlowConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type FlowConfig struct {
	// IdleTimeout is how long an attempt may sit without input before the
	// sweeper aborts it and releases its provider handle.
	IdleTimeout time.Duration

	// SweepInterval is the cadence of the idle-attempt sweeper.
	SweepInterval time.Duration

	// MaxCodeAttempts bounds rejected one-time codes per attempt.
	MaxCodeAttempts int

	// MaxPasswordAttempts bounds rejected second-factor passwords per attempt.
	MaxPasswordAttempts int

	// MinPasswordLength is the local pre-check applied before a
	// second-factor password is ever sent to the provider.
	MinPasswordLength int
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig tunes the per-user sliding-window limiter.
//
// RateLimitConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RateLimitConfig struct {
	Enabled     bool
	Window      time.Duration
	MaxRequests int
}

/*
====================================
SESSIONS CONFIG
====================================
*/

// SessionsConfig tunes the durable session store.
//
// SessionsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionsConfig struct {
	// RedisPrefix namespaces every store key.
	RedisPrefix string

	// MaxPerUser caps non-revoked sessions per user. Enforced atomically
	// at insert; also pre-checked when a flow starts.
	MaxPerUser int
}

/*
====================================
CRYPTO CONFIG
====================================
*/

// CryptoConfig supplies the process-wide encryption key. Exactly one of Key
// (32 raw bytes) or Passphrase (HKDF-derived) must be set. Neither is ever
// logged or persisted by this module.
type CryptoConfig struct {
	Key        []byte
	Passphrase string
}

/*
====================================
AUDIT / METRICS / OWNER CONFIG
====================================
*/

// AuditConfig defines a public type used by string-bot APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int

	// DropIfFull trades audit completeness for non-blocking emission.
	// Dropped events are counted and visible through Engine.AuditDropped.
	DropIfFull bool
}

// MetricsConfig defines a public type used by string-bot APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool
}

// OwnerConfig identifies the bot owner. Owner commands bypass the per-user
// state machine and the rate limiter.
type OwnerConfig struct {
	UserID int64
}

// DefaultConfig returns the configuration the engine ships with: 5 requests
// per 60s window, 3 stored sessions per user, 10 minute attempt idle
// timeout, audit and metrics enabled.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Flow: FlowConfig{
			IdleTimeout:         10 * time.Minute,
			SweepInterval:       time.Minute,
			MaxCodeAttempts:     3,
			MaxPasswordAttempts: 3,
			MinPasswordLength:   4,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Window:      60 * time.Second,
			MaxRequests: 5,
		},
		Sessions: SessionsConfig{
			RedisPrefix: "sb",
			MaxPerUser:  3,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Crypto.Key != nil {
		out.Crypto.Key = make([]byte, len(cfg.Crypto.Key))
		copy(out.Crypto.Key, cfg.Crypto.Key)
	}
	return out
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
func (c *Config) Validate() error {
	if c.Flow.IdleTimeout <= 0 {
		return errors.New("Flow.IdleTimeout must be positive")
	}
	if c.Flow.SweepInterval <= 0 {
		return errors.New("Flow.SweepInterval must be positive")
	}
	if c.Flow.MaxCodeAttempts < 1 {
		return errors.New("Flow.MaxCodeAttempts must be at least 1")
	}
	if c.Flow.MaxPasswordAttempts < 1 {
		return errors.New("Flow.MaxPasswordAttempts must be at least 1")
	}
	if c.Flow.MinPasswordLength < 1 {
		return errors.New("Flow.MinPasswordLength must be at least 1")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit.Window must be positive")
		}
		if c.RateLimit.MaxRequests < 1 {
			return errors.New("RateLimit.MaxRequests must be at least 1")
		}
	}
	if c.Sessions.RedisPrefix == "" {
		return errors.New("Sessions.RedisPrefix must not be empty")
	}
	if c.Sessions.MaxPerUser < 1 {
		return errors.New("Sessions.MaxPerUser must be at least 1")
	}
	hasKey := len(c.Crypto.Key) > 0
	hasPassphrase := c.Crypto.Passphrase != ""
	switch {
	case hasKey && hasPassphrase:
		return errors.New("Crypto: set either Key or Passphrase, not both")
	case !hasKey && !hasPassphrase:
		return errors.New("Crypto: an encryption key or passphrase is required")
	case hasKey && len(c.Crypto.Key) != 32:
		return errors.New("Crypto.Key must be exactly 32 bytes")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return errors.New("Audit.BufferSize must be at least 1")
	}
	return nil
}
