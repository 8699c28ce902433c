// Package credlock manages credential and session lifecycles: JWT access
// tokens, rotating opaque refresh tokens with reuse detection, a
// TTL-bound revocation registry, per-user session bookkeeping, and a
// TOTP/backup-code MFA state machine, all over Redis.
//
// The package targets concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// credlock is the public surface. It exposes [Engine], [Builder],
// [Config], the UserStore contract, and value types (LoginResult,
// TokenPair, SessionInfo, MFASetup, MetricsSnapshot). Session encoding,
// rotation scripts, rate limiting, and token plumbing live in
// sub-packages; account persistence belongs entirely to the caller
// behind [UserStore].
//
// # What this package must NOT do
//
//   - Expose Redis clients, store internals, or blob encodings in its
//     public API.
//   - Store passwords, raw tokens, TOTP secrets, or backup codes in
//     plaintext anywhere. Tokens are hashed or fingerprinted; MFA
//     material is sealed.
//   - Perform I/O outside Engine methods (construction via Builder is
//     allocation-only until Build).
//
// # Performance contract
//
// Authenticate is the hot path: one signature verification plus two
// Redis point reads (revocation EXISTS, session GET). Refresh performs
// a single server-side compare-and-swap. Nothing in the library sleeps,
// retries, or spawns goroutines besides the audit dispatcher.
package credlock
