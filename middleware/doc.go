// Package middleware adapts credlock.Engine authentication to net/http.
//
// [Guard] reads the Authorization bearer token, validates it through
// Engine.Authenticate, and injects the resulting identity into the
// request context where [AuthResultFromContext] retrieves it. The
// request's client address and user agent are forwarded so engine audit
// events carry them.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; every decision is delegated to
// Engine.Authenticate.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis.
//   - Leak WHY a request was rejected (all failures are 401).
package middleware
