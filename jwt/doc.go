// Package jwt issues and verifies the signed access tokens credlock hands
// out. Verification here proves authenticity and time validity only;
// whether a token is still honored (revocation, session state) is decided
// by the Engine against its registries.
//
// # What this package must NOT do
//
//   - Touch Redis or any store.
//   - Map library errors to the public credlock taxonomy (Engine's job).
package jwt
