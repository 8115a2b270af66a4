// Package session provides Redis-backed persistence for issued session
// records: capacity-capped insertion, newest-first listing, idempotent
// revocation, and owner statistics.
//
// # Key layout
//
// Under the configured prefix p:
//   - p:<session_id>      record hash (user, secret, phone, tfa, created, revoked)
//   - p:u:<user_id>       set of the user's active (non-revoked) session ids
//   - p:users             set of every user that ever stored a session
//   - p:count:active      global active-session counter
//   - p:count:tfa         global second-factor counter
//   - p:recent            zset of session ids scored by creation time (24h window)
//
// # Atomicity
//
// Put and Revoke each run as a single Lua script, so the per-user capacity
// invariant and the monotonic revoked flag hold under concurrent callers.
// RevokeAllForUser is a read-then-revoke loop and is documented as such.
//
// # What this package must NOT do
//
//   - See plaintext credentials. Secret and phone arrive as ciphertext from
//     the engine and are stored verbatim.
//   - Enforce authentication policy; it persists what the engine decides.
package session
