package stringbot

import "errors"

var (
	// ErrEngineNotReady is an exported constant or variable used by the session engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrMaintenanceActive is an exported constant or variable used by the session engine.
	ErrMaintenanceActive = errors.New("maintenance mode active")
	// ErrRateLimitExceeded is an exported constant or variable used by the session engine.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrCapacityExceeded is an exported constant or variable used by the session engine.
	ErrCapacityExceeded = errors.New("session capacity exceeded")
	// ErrNoActiveAttempt is an exported constant or variable used by the session engine.
	ErrNoActiveAttempt = errors.New("no active attempt")
	// ErrUnknownCommand is an exported constant or variable used by the session engine.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrSessionNotFound is an exported constant or variable used by the session engine.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreUnavailable is an exported constant or variable used by the session engine.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Provider contract errors. AuthProvider implementations return these,
// wrapped or bare, so the state machine can classify an outcome with
// errors.Is: invalid code / expired code / invalid second factor are
// same-stage retries, everything else is fatal to the attempt.
var (
	// ErrProviderConnect is an exported constant or variable used by the session engine.
	ErrProviderConnect = errors.New("provider connection failed")
	// ErrProviderInvalidCredentials is an exported constant or variable used by the session engine.
	ErrProviderInvalidCredentials = errors.New("provider rejected application credentials")
	// ErrProviderInvalidCode is an exported constant or variable used by the session engine.
	ErrProviderInvalidCode = errors.New("provider rejected one-time code")
	// ErrProviderCodeExpired is an exported constant or variable used by the session engine.
	ErrProviderCodeExpired = errors.New("one-time code expired")
	// ErrProviderSecondFactorInvalid is an exported constant or variable used by the session engine.
	ErrProviderSecondFactorInvalid = errors.New("provider rejected second-factor password")
	// ErrProviderUnavailable is an exported constant or variable used by the session engine.
	ErrProviderUnavailable = errors.New("provider unavailable")
)
