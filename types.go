package stringbot

import (
	"context"
	"time"
)

// Stage identifies the position of an in-flight attempt inside the
// credential-elicitation state machine. Stages only move forward; the only
// way back to an earlier stage is a fresh attempt.
type Stage uint8

const (
	// StageAwaitingAppID is an exported constant or variable used by the session engine.
	StageAwaitingAppID Stage = iota
	// StageAwaitingAppHash is an exported constant or variable used by the session engine.
	StageAwaitingAppHash
	// StageAwaitingPhone is an exported constant or variable used by the session engine.
	StageAwaitingPhone
	// StageAwaitingCode is an exported constant or variable used by the session engine.
	StageAwaitingCode
	// StageAwaitingSecondFactor is an exported constant or variable used by the session engine.
	StageAwaitingSecondFactor
)

// String describes the string operation and its observable behavior.
func (s Stage) String() string {
	switch s {
	case StageAwaitingAppID:
		return "awaiting_app_id"
	case StageAwaitingAppHash:
		return "awaiting_app_hash"
	case StageAwaitingPhone:
		return "awaiting_phone"
	case StageAwaitingCode:
		return "awaiting_code"
	case StageAwaitingSecondFactor:
		return "awaiting_second_factor"
	default:
		return "unknown"
	}
}

// ProviderHandle is an opaque live connection to the remote authentication
// provider. A handle is owned by exactly one attempt from the moment
// [AuthProvider.Connect] returns it until the engine passes it to
// [AuthProvider.Release]. The engine never shares a handle between users and
// never holds more than one per user.
type ProviderHandle interface{}

// VerifyResult is the structured outcome of a successful
// [AuthProvider.VerifyCode] or [AuthProvider.VerifySecondFactor] call.
//
// When SecondFactorRequired is set the verification did not fail but cannot
// complete without the account password; Identity and SessionString are
// empty in that case. Providers must report this through the result, never
// through an error the caller would have to string-match.
type VerifyResult struct {
	SecondFactorRequired bool

	// Identity is the provider-side account identifier that was verified.
	Identity int64

	// SessionString is the opaque long-lived credential. The engine
	// encrypts it before it is persisted and never writes it to logs or
	// audit records.
	SessionString string
}

// AuthProvider performs the account-linking handshake against the remote
// service. Implementations translate their protocol errors into the
// ErrProvider* sentinels (wrapped is fine; the engine matches with
// errors.Is) so the state machine can distinguish retryable rejections from
// attempt-fatal failures.
//
// All methods may block for provider round-trips; the engine calls them
// while holding only the per-user lock.
type AuthProvider interface {
	Connect(ctx context.Context, appID int, appHash string) (ProviderHandle, error)
	RequestCode(ctx context.Context, handle ProviderHandle, phone string) (codeHash string, err error)
	VerifyCode(ctx context.Context, handle ProviderHandle, code, codeHash string) (*VerifyResult, error)
	VerifySecondFactor(ctx context.Context, handle ProviderHandle, password string) (*VerifyResult, error)
	Release(ctx context.Context, handle ProviderHandle) error
}

// Button is an optional inline control attached to a reply.
type Button struct {
	Label string
	Data  string
}

// Messenger delivers engine output to the chat transport. Reply must be
// best-effort and fast; the engine treats a delivery error as transport
// failure, not as a state-machine event.
type Messenger interface {
	Reply(ctx context.Context, userID int64, text string, buttons ...Button) error
	NotifyAuditChannel(ctx context.Context, text string) error
}

// SessionInfo is the user- and owner-facing view of a stored session. It
// carries the redacted phone only; the session string itself is never
// exposed through listing surfaces.
type SessionInfo struct {
	SessionID       string
	PhoneMasked     string
	HasSecondFactor bool
	CreatedAt       time.Time
	Revoked         bool
}

// StoreStats is the owner-facing aggregate over the session store.
type StoreStats struct {
	TotalUsers           int64
	ActiveSessions       int64
	SecondFactorSessions int64
	CreatedLast24h       int64
}
