// Package session tracks server-side login sessions: creation,
// validation, revocation and retention cleanup.
//
// A session is the server's record of one login, independent of the
// bearer token itself, which lets the server revoke access without
// waiting for token expiry. Tokens are stored only as SHA-256 hashes.
//
// The state machine per session is
//
//	pending_mfa -> active -> expired | revoked_manual | revoked_security | revoked_inactive
//
// Terminal states are never reused; a later login always creates a new
// session.
//
// Store is the persistence contract, implemented by SQLStore over
// database/sql (PostgreSQL in production, SQLite in tests) and wrapped
// by CachedStore, a Redis read-through cache for the validation hot
// path. Manager drives the state machine and emits audit events.
// Sweeper applies the retention policy in three independent steps:
// revoke time-expired sessions, revoke sessions idle past the
// inactivity window, hard-delete sessions past the retention window.
package session
