// Package internal contains helper utilities that are intentionally private
// to credlock: session ID generation, the opaque refresh token codec, and
// access-token fingerprinting.
//
// # Sub-packages
//
//   - rate — Redis-backed fixed-window rate limit primitives
//
// # What this package must NOT do
//
//   - Export types that appear in the public credlock API.
//   - Be imported by any package outside the credlock module.
package internal
