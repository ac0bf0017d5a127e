// Package supabase implements phoneauth.Backend against a hosted auth service
// exposing the Supabase GoTrue phone OTP endpoints.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spacekayak/phoneauth"
	"github.com/spacekayak/phoneauth/jwt"
)

const (
	DefaultTimeout = 30 * time.Second
	otpPath        = "/auth/v1/otp"
	verifyPath     = "/auth/v1/verify"
	maxErrorBody   = 4096
)

var (
	ErrURLRequired = errors.New("supabase: project URL is required")
	ErrKeyRequired = errors.New("supabase: anon key is required")
	// ErrRateLimited is matched by errors.Is for HTTP 429 responses.
	ErrRateLimited = errors.New("supabase: rate limited")
	// ErrRejected is matched by errors.Is for 4xx responses other than 429.
	ErrRejected = errors.New("supabase: request rejected")
)

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("supabase: status %d", e.Status)
	}
	return fmt.Sprintf("supabase: status %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrRejected:
		return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusTooManyRequests
	}
	return false
}

type errorBody struct {
	Code             string `json:"error_code"`
	Error            string `json:"error"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
}

type otpRequest struct {
	Phone string `json:"phone"`
}

type verifyRequest struct {
	Phone string `json:"phone"`
	Token string `json:"token"`
	Type  string `json:"type"`
}

type verifyResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    string `json:"id"`
		Phone string `json:"phone"`
	} `json:"user"`
}

// Client talks to one project. It is safe for concurrent use.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client with a DefaultTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New returns a Client for the project at baseURL, e.g.
// "https://abc.supabase.co".
func New(baseURL, anonKey string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrURLRequired
	}
	if strings.TrimSpace(anonKey) == "" {
		return nil, ErrKeyRequired
	}

	c := &Client{
		baseURL:    baseURL,
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("supabase")
	return c, nil
}

// SendCode asks the service to text a code to phone.
func (c *Client) SendCode(ctx context.Context, phone string) error {
	if err := c.post(ctx, otpPath, otpRequest{Phone: phone}, nil); err != nil {
		c.logger.Warn("send code failed", zap.String("phone", phoneauth.MaskPhone(phone)), zap.Error(err))
		return err
	}
	c.logger.Debug("code requested", zap.String("phone", phoneauth.MaskPhone(phone)))
	return nil
}

// VerifyCode exchanges code for a session. The grant subject is the user ID,
// or the token's sub claim when the response omits the user.
func (c *Client) VerifyCode(ctx context.Context, phone, code string) (*phoneauth.Grant, error) {
	var resp verifyResponse
	err := c.post(ctx, verifyPath, verifyRequest{Phone: phone, Token: code, Type: "sms"}, &resp)
	if err != nil {
		c.logger.Warn("verify code failed", zap.String("phone", phoneauth.MaskPhone(phone)), zap.Error(err))
		return nil, err
	}

	grant := &phoneauth.Grant{
		AccessToken: resp.AccessToken,
		Subject:     resp.User.ID,
		Phone:       phone,
	}
	if grant.Subject == "" && resp.AccessToken != "" {
		if sub, err := jwt.UnverifiedSubject(resp.AccessToken); err == nil {
			grant.Subject = sub
		}
	}
	if resp.ExpiresIn > 0 {
		grant.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second).Truncate(time.Second)
	}
	return grant, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("supabase: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("supabase: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.anonKey)
	if id := phoneauth.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("supabase: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("supabase: decode response: %w", err)
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	apiErr := &APIError{Status: status}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
		return apiErr
	}
	apiErr.Code = body.Code
	if apiErr.Code == "" {
		apiErr.Code = body.Error
	}
	for _, m := range []string{body.Msg, body.ErrorDescription, body.Message, body.Error} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	return apiErr
}
