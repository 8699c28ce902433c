// Package password provides argon2id hashing in PHC string format, plus
// parameter-upgrade detection so hashes can be transparently rehashed on
// successful login when the configured cost grows.
//
// Password bytes are used exactly as provided; no Unicode normalization,
// no strength policy. Callers own both.
package password
