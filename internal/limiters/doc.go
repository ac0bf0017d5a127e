// Package limiters provides the Redis-backed send limiter used by the
// self-hosted backend.
//
// [SendLimiter] combines three checks for one code send: a per-phone
// cooldown claimed with SET NX PX, a per-phone fixed window and an optional
// per-IP fixed window (INCR plus EXPIRE on first hit).
//
// SendLimiter is nil-safe: calling any method on a nil receiver returns nil.
//
// # Architecture boundaries
//
// The limiter owns its Redis key namespace and error types. Policy thresholds
// come from the SendConfig supplied at construction time.
//
// # What this package must NOT do
//
//   - Import phoneauth or any sibling internal package.
//   - Make policy decisions beyond counting; the backend decides consequences.
package limiters
