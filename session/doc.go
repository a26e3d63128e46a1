// Package session provides Redis-backed session persistence, compact binary
// session encoding, and the digests used to detect stale sessions.
//
// # Binary encoding
//
// Sessions are stored as a fixed-size versioned blob: account id, remember
// class, protection level, attribute fingerprint, client-context hash and
// the created/expires timestamps. The session ID is the Redis key, never
// part of the blob.
//
// # Keys
//
//	<prefix>:s:<sessionID>  session blob, TTL = absolute expiry or idle window
//	<prefix>:a:<accountID>  set of the account's session IDs
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does not look up
// accounts or decide what a fingerprint mismatch means; the Engine does.
//
// # What this package must NOT do
//
//   - Import goAccess or any sibling package (no upward imports).
//   - Store plaintext secrets in [Session] fields.
package session
