// Package rate provides internal primitives used to build Redis-backed rate
// limit keys, errors, and limiter behavior for login and refresh traffic.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - cll: — login per-identifier
//   - clr: — refresh per-session
//
// # What this package must NOT do
//
//   - Decide policy (thresholds and windows come from the engine config).
//   - Be imported outside the credlock module.
package rate
