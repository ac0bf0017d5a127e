package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spacekayak/phoneauth/jwt"
)

func newTestGrants(t *testing.T) *jwt.Manager {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{
		TTL:           time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("middleware-test-secret"),
		Issuer:        "phoneauth",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestRequireGrant(t *testing.T) {
	grants := newTestGrants(t)
	grant, err := grants.CreateGrant("user-1", "+919876543210")
	if err != nil {
		t.Fatalf("CreateGrant: %v", err)
	}

	var seenPhone string
	handler := RequireGrant(grants)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GrantClaimsFromContext(r.Context())
		if !ok {
			t.Error("expected claims in context")
		}
		seenPhone = claims.Phone
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid", "Bearer " + grant.Token, http.StatusNoContent},
		{"lowercase scheme", "bearer " + grant.Token, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
	if seenPhone != "+919876543210" {
		t.Fatalf("expected phone claim, got %q", seenPhone)
	}
}

func TestRequireGrantNilManager(t *testing.T) {
	handler := RequireGrant(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
