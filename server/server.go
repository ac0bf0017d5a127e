// Package server is the dev auth service: the local backend behind
// Supabase-compatible phone OTP endpoints, plus dev and ops routes.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spacekayak/phoneauth"
	"github.com/spacekayak/phoneauth/backend/local"
	"github.com/spacekayak/phoneauth/jwt"
	"github.com/spacekayak/phoneauth/metrics/export/prometheus"
	"github.com/spacekayak/phoneauth/middleware"
	"github.com/spacekayak/phoneauth/sms"
)

const requestIDHeader = "X-Request-ID"

// Options wires the server's dependencies. Backend is required.
type Options struct {
	Backend phoneauth.Backend
	// Grants verifies bearer tokens on /auth/v1/user. Nil disables the route.
	Grants *jwt.Manager
	// Outbox enables GET /dev/otp. Leave nil outside development.
	Outbox *sms.DevOutbox
	// Metrics feed GET /metrics.
	Metrics []prometheus.MetricsSource
	// Health is called by GET /healthz. Nil always reports ok.
	Health func(ctx context.Context) error
	// TrustedProxies is passed to gin. Nil trusts no proxy headers.
	TrustedProxies []string
	Logger         *zap.Logger
}

type handler struct {
	backend phoneauth.Backend
	outbox  *sms.DevOutbox
	health  func(ctx context.Context) error
	logger  *zap.Logger
}

// New builds the gin engine.
func New(opts Options) (*gin.Engine, error) {
	if opts.Backend == nil {
		return nil, errors.New("server: backend is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("server")

	router := gin.New()
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}
	router.Use(requestContext(), accessLog(logger), gin.Recovery())

	h := &handler{
		backend: opts.Backend,
		outbox:  opts.Outbox,
		health:  opts.Health,
		logger:  logger,
	}

	auth := router.Group("/auth/v1")
	auth.POST("/otp", h.sendOTP)
	auth.POST("/verify", h.verifyOTP)
	if opts.Grants != nil {
		auth.GET("/user", gin.WrapH(middleware.RequireGrant(opts.Grants)(http.HandlerFunc(currentUser))))
	}

	router.GET("/dev/otp", h.devOTP)
	router.GET("/healthz", h.healthz)
	router.GET("/metrics", gin.WrapH(prometheus.NewExporter(opts.Metrics...).Handler()))

	return router, nil
}

// requestContext carries the request ID and client IP into the request
// context for backends.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		ctx := phoneauth.WithRequestID(c.Request.Context(), id)
		ctx = phoneauth.WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", phoneauth.RequestIDFromContext(c.Request.Context())),
			zap.String("ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request failed", fields...)
			return
		}
		logger.Debug("request", fields...)
	}
}

/*
====================================
AUTH ENDPOINTS
====================================
*/

type otpRequest struct {
	Phone string `json:"phone"`
}

type verifyRequest struct {
	Phone string `json:"phone"`
	Token string `json:"token"`
	Type  string `json:"type"`
}

type userResponse struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
}

type sessionResponse struct {
	AccessToken string       `json:"access_token,omitempty"`
	TokenType   string       `json:"token_type,omitempty"`
	ExpiresIn   int64        `json:"expires_in,omitempty"`
	ExpiresAt   int64        `json:"expires_at,omitempty"`
	User        userResponse `json:"user"`
}

func (h *handler) sendOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_json", "request body must be JSON")
		return
	}
	if err := h.backend.SendCode(c.Request.Context(), req.Phone); err != nil {
		h.writeBackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (h *handler) verifyOTP(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_json", "request body must be JSON")
		return
	}
	if req.Type != "" && req.Type != "sms" {
		writeError(c, http.StatusBadRequest, "validation_failed", "only sms verification is supported")
		return
	}

	grant, err := h.backend.VerifyCode(c.Request.Context(), req.Phone, req.Token)
	if err != nil {
		h.writeBackendError(c, err)
		return
	}

	resp := sessionResponse{User: userResponse{Phone: req.Phone}}
	if grant != nil {
		resp.User.ID = grant.Subject
		if grant.AccessToken != "" {
			resp.AccessToken = grant.AccessToken
			resp.TokenType = "bearer"
		}
		if !grant.ExpiresAt.IsZero() {
			resp.ExpiresAt = grant.ExpiresAt.Unix()
			if secs := int64(time.Until(grant.ExpiresAt).Round(time.Second) / time.Second); secs > 0 {
				resp.ExpiresIn = secs
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

func currentUser(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.GrantClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, userResponse{ID: claims.Subject, Phone: claims.Phone})
}

/*
====================================
DEV AND OPS ENDPOINTS
====================================
*/

func (h *handler) devOTP(c *gin.Context) {
	if h.outbox == nil {
		writeError(c, http.StatusNotFound, "not_found", "dev OTP mode is disabled")
		return
	}
	phone := c.Query("phone")
	msg, ok := h.outbox.Latest(phone)
	if !ok {
		writeError(c, http.StatusNotFound, "not_found", "no code for phone")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"phone":      msg.Phone,
		"otp":        msg.Code,
		"sent_at":    msg.SentAt.UTC().Format(time.RFC3339),
		"expires_at": msg.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *handler) healthz(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

/*
====================================
ERRORS
====================================
*/

func (h *handler) writeBackendError(c *gin.Context, err error) {
	status, code, msg := mapBackendError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("backend call failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", phoneauth.RequestIDFromContext(c.Request.Context())),
			zap.Error(err),
		)
	}
	writeError(c, status, code, msg)
}

func mapBackendError(err error) (int, string, string) {
	switch {
	case errors.Is(err, local.ErrInvalidPhone):
		return http.StatusBadRequest, "validation_failed", "invalid phone number"
	case errors.Is(err, local.ErrInvalidCode):
		return http.StatusBadRequest, "validation_failed", "invalid code format"
	case errors.Is(err, local.ErrCooldown):
		return http.StatusTooManyRequests, "over_sms_send_rate_limit", "a code was sent recently, wait before requesting another"
	case errors.Is(err, local.ErrRateLimited):
		return http.StatusTooManyRequests, "over_request_rate_limit", "too many requests"
	case errors.Is(err, local.ErrCodeRejected):
		return http.StatusUnauthorized, "otp_invalid", "Token has expired or is invalid"
	case errors.Is(err, local.ErrNoChallenge), errors.Is(err, local.ErrAttemptsExceeded):
		return http.StatusUnauthorized, "otp_expired", "Token has expired or is invalid"
	case errors.Is(err, local.ErrDelivery):
		return http.StatusInternalServerError, "sms_send_failed", "could not deliver the code"
	default:
		return http.StatusInternalServerError, "unexpected_failure", "internal error"
	}
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "msg": msg})
}
