// Package session provides Redis-backed session persistence, compact binary
// session encoding, and atomic refresh-hash rotation for authentication hot
// paths.
//
// # Binary encoding
//
// Sessions are stored in Redis as a compact binary blob. All fixed-length
// fields (flags, both refresh hashes, timestamps) sit at fixed offsets before
// the variable-length tail, so the rotation Lua script can splice hashes and
// bump timestamps without a full parse.
//
// # Rotation
//
// Rotate is a single server-side compare-and-swap: the provided hash is
// matched against the current slot (rotate), the prior slot (reuse, which
// revokes the session in place), or neither (no state change). Concurrent
// rotations of the same token therefore have exactly one winner.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model.
// It does NOT interpret JWT tokens or decide lifecycle policy — those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import the root credlock package (no upward imports).
//   - Store refresh secrets; only SHA-256 hashes of them.
package session
