// Package rate provides the Redis-backed throttle on failed code
// verifications.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - pvf:  verify failures per phone
//   - pvfi: verify failures per client IP
//
// # What this package must NOT do
//
//   - Implement send policies (those live in internal/limiters).
//   - Be imported outside the phoneauth module.
package rate
