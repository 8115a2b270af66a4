package session

// Record defines a public type used by string-bot APIs.
//
// Record instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
// Secret and Phone hold ciphertext produced by the engine; this package
// never sees plaintext credentials.
type Record struct {
	SessionID string
	UserID    int64

	Secret []byte
	Phone  []byte

	HasSecondFactor bool
	CreatedAt       int64
	Revoked         bool
}

// Stats aggregates the store for the owner surface.
type Stats struct {
	TotalUsers           int64
	ActiveSessions       int64
	SecondFactorSessions int64
	CreatedLast24h       int64
}
