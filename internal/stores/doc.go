// Package stores provides the Redis-backed store for outstanding one-time
// code challenges.
//
// # Design
//
// A challenge is a versioned, binary-encoded record kept under one key per
// phone with a TTL equal to the code lifetime. Consume runs a single Lua
// script (GET, validate, DEL or SET) so a code can be redeemed at most once
// and the attempt counter cannot be raced. Only the SHA-256 digest of the
// code is stored, and the final comparison is constant-time.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for challenge
// records. It does NOT generate codes, enforce send rate limits, or decide
// what a failed attempt means for the caller; backend/local does that.
//
// # What this package must NOT do
//
//   - Import phoneauth or any sibling internal package.
//   - Log or expose plaintext codes.
//   - Use non-constant-time comparisons for code matching.
package stores
