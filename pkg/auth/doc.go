// Package auth covers the token edge of the system: opaque bearer
// token generation and the Resolver that turns an inbound token into an
// authorization Principal.
//
// Tokens are opaque, not JWTs: "wdn_" followed by base64url-encoded
// random bytes. Only the SHA-256 hash is ever stored, so a database
// leak does not leak usable credentials.
//
// The Resolver performs the per-request chain: hash the token, find the
// session, validate it through the session manager, look up the user's
// role and build the Principal from the role catalog. A small expirable
// LRU caches the token-to-session mapping, which is immutable for a
// session's lifetime; validation itself is never skipped, so a cached
// entry cannot outlive a revocation.
package auth
