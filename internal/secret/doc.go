// Package secret provides the authenticated-encryption envelope used for
// session strings and phone numbers at rest.
//
// # Envelope format
//
// version byte (0x01), 12-byte random GCM nonce, AES-256-GCM ciphertext with
// tag. The format is append-only: a future version adds a new leading byte
// value and keeps v1 readable.
//
// # What this package must NOT do
//
//   - Persist, log, or derive anything from the key beyond the AEAD itself.
//   - Return plaintext from a blob that failed authentication; every
//     malformed or tampered input maps to ErrIntegrity.
package secret
