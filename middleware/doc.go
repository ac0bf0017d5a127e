// Package middleware exposes net/http middleware that admits requests carrying
// a grant issued after phone verification.
//
// [RequireGrant] reads the Authorization header, verifies the token with a
// jwt.Manager and injects the claims into the request context, where
// [GrantClaimsFromContext] finds them. It makes no decision beyond pass or
// reject.
package middleware
