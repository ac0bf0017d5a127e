package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"

	"github.com/spacekayak/phoneauth"
)

const testPhone = "+919876543210"

type recorded struct {
	path    string
	apikey  string
	auth    string
	reqID   string
	payload map[string]string
}

type recorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (r *recorder) first() recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[0]
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *recorder) {
	t.Helper()
	calls := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{
			path:   r.URL.Path,
			apikey: r.Header.Get("apikey"),
			auth:   r.Header.Get("Authorization"),
			reqID:  r.Header.Get("X-Request-ID"),
		}
		_ = json.NewDecoder(r.Body).Decode(&rec.payload)
		calls.mu.Lock()
		calls.calls = append(calls.calls, rec)
		calls.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", "anon-key")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, calls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewValidates(t *testing.T) {
	if _, err := New("", "k"); !errors.Is(err, ErrURLRequired) {
		t.Fatalf("expected ErrURLRequired, got %v", err)
	}
	if _, err := New("https://x.supabase.co", " "); !errors.Is(err, ErrKeyRequired) {
		t.Fatalf("expected ErrKeyRequired, got %v", err)
	}
}

func TestSendCodeRequest(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	ctx := phoneauth.WithRequestID(context.Background(), "req-1")
	if err := c.SendCode(ctx, testPhone); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}

	got := calls.first()
	if got.path != "/auth/v1/otp" || got.payload["phone"] != testPhone {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.apikey != "anon-key" || got.auth != "Bearer anon-key" {
		t.Fatalf("unexpected auth headers: %+v", got)
	}
	if got.reqID != "req-1" {
		t.Fatalf("expected request id propagated, got %q", got.reqID)
	}
}

func TestVerifyCodeReturnsGrant(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "tok",
			"token_type":    "bearer",
			"expires_in":    3600,
			"refresh_token": "refresh",
			"user":          map[string]any{"id": "user-7", "phone": "919876543210"},
		})
	})
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	grant, err := c.VerifyCode(context.Background(), testPhone, "123456")
	if err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
	want := phoneauth.Grant{AccessToken: "tok", Subject: "user-7", Phone: testPhone, ExpiresAt: fixed.Add(time.Hour)}
	if *grant != want {
		t.Fatalf("unexpected grant %+v", grant)
	}

	got := calls.first()
	if got.path != "/auth/v1/verify" || got.payload["token"] != "123456" || got.payload["type"] != "sms" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestVerifyCodeSubjectFromToken(t *testing.T) {
	tok, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.RegisteredClaims{Subject: "user-from-token"}).
		SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": tok})
	})

	grant, err := c.VerifyCode(context.Background(), testPhone, "123456")
	if err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
	if grant.Subject != "user-from-token" || !grant.ExpiresAt.IsZero() {
		t.Fatalf("unexpected grant %+v", grant)
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    error
		wantMsg string
	}{
		{
			name:    "expired token",
			status:  http.StatusUnauthorized,
			body:    `{"code":401,"error_code":"otp_expired","msg":"Token has expired or is invalid"}`,
			want:    ErrRejected,
			wantMsg: "Token has expired or is invalid",
		},
		{
			name:    "oauth style",
			status:  http.StatusBadRequest,
			body:    `{"error":"invalid_grant","error_description":"Invalid phone"}`,
			want:    ErrRejected,
			wantMsg: "Invalid phone",
		},
		{
			name:    "rate limit",
			status:  http.StatusTooManyRequests,
			body:    `{"msg":"For security purposes, you can only request this after 60 seconds."}`,
			want:    ErrRateLimited,
			wantMsg: "For security purposes, you can only request this after 60 seconds.",
		},
		{
			name:    "plain text",
			status:  http.StatusBadGateway,
			body:    "upstream down",
			wantMsg: "upstream down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.VerifyCode(context.Background(), testPhone, "123456")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Status != tt.status || apiErr.Message != tt.wantMsg {
				t.Fatalf("unexpected error %+v", apiErr)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected errors.Is(%v)", tt.want)
			}
			if tt.want == nil && (errors.Is(err, ErrRejected) || errors.Is(err, ErrRateLimited)) {
				t.Fatalf("5xx must not match client sentinels")
			}
		})
	}
}

func TestCancelledContext(t *testing.T) {
	block := make(chan struct{})
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.SendCode(ctx, testPhone); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
