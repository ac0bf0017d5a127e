package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/spacekayak/phoneauth/jwt"
)

type grantClaimsContextKey struct{}

// GrantClaimsFromContext returns the claims stored by RequireGrant.
func GrantClaimsFromContext(ctx context.Context) (*jwt.GrantClaims, bool) {
	claims, ok := ctx.Value(grantClaimsContextKey{}).(*jwt.GrantClaims)
	return claims, ok
}

// RequireGrant rejects requests without a valid "Authorization: Bearer"
// grant and stores the parsed claims in the request context.
func RequireGrant(grants *jwt.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if grants == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := grants.ParseGrant(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), grantClaimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
