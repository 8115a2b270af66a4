// Package stringbot provides the session-string issuance engine behind the
// string-bot front end: a per-user credential-elicitation state machine that
// collects application credentials, a phone number, and a one-time code
// (optionally a second-factor password), drives an external AuthProvider
// through the account-linking handshake, and stores the resulting long-lived
// session string encrypted at rest.
//
// The package is designed for concurrent bot workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. Messages from the same user are serialized under a
// per-user lock; unrelated users never contend on a shared lock.
//
// # Architecture boundaries
//
// stringbot is the public surface. It exposes [Engine], [Builder], [Config],
// the [AuthProvider] and [Messenger] capabilities, and value types
// (SessionInfo, MetricsSnapshot, AuditEvent). Session persistence lives in
// session/, encryption in internal/secret/, and request throttling in
// internal/rate/.
//
// # What this package must NOT do
//
//   - Speak the remote authentication wire protocol. That is the
//     AuthProvider implementation's job; the engine only sequences calls and
//     owns the handle lifecycle.
//   - Deliver chat messages itself. Every user-visible reply goes through
//     the injected Messenger.
//   - Log or persist plaintext session strings, second-factor passwords, or
//     the encryption key. Audit records carry redacted phone numbers only.
//
// # Lifecycle contract
//
// Each user has at most one in-flight attempt and at most one live provider
// handle at any instant. Every exit path of an attempt (completion, cancel,
// abandonment, retry exhaustion, idle timeout, panic) releases the provider
// handle before the attempt record is discarded. Attempts are process-local
// and do not survive restarts.
package stringbot
