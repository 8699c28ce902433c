// Package revocation provides a TTL-bound registry of revoked access-token
// fingerprints.
//
// # Shape
//
// One Redis string per revoked token, keyed by the hex SHA-256 fingerprint
// of the raw token, holding the revocation reason. The TTL equals the
// token's remaining lifetime, so entries expire exactly when the tokens
// they block do. No sweeper goroutine is needed.
//
// # What this package must NOT do
//
//   - Parse or validate JWTs (the Engine hands it fingerprints).
//   - Store raw tokens.
package revocation
