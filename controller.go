package phoneauth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Controller owns one verification session and drives the backend for it.
//
// All methods are safe for concurrent use. Mutations are serialized; backend
// calls run with the internal lock released and their results are dropped if
// the session was reset while they were in flight.
type Controller struct {
	cfg     Config
	backend Backend
	logger  *zap.Logger
	metrics *Metrics
	audit   *auditDispatcher

	mu       sync.Mutex
	state    Session
	timer    *resendTimer
	timerSeq uint64
	subs     map[uint64]chan Session
	nextSub  uint64
	closed   bool
}

func newController(cfg Config, backend Backend, logger *zap.Logger) *Controller {
	return &Controller{
		cfg:     cfg,
		backend: backend,
		logger:  logger,
		state: Session{
			ID:         uuid.NewString(),
			Generation: 1,
			Step:       StepPhoneEntry,
		},
		subs: make(map[uint64]chan Session),
	}
}

// Session returns the current snapshot.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Metrics returns the controller's metrics registry. It is nil-safe to use
// even when metrics are disabled.
func (c *Controller) Metrics() *Metrics {
	return c.metrics
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Controller) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped because the
// dispatcher queue was full.
func (c *Controller) AuditDropped() uint64 {
	return c.audit.Dropped()
}

/*
====================================
MODAL LIFECYCLE
====================================
*/

// Show presents the verification modal. It does not change the step.
func (c *Controller) Show() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state.ModalVisible {
		return
	}
	c.state.ModalVisible = true
	c.publishLocked()
}

// Dismiss hides the modal and starts a fresh session at PhoneEntry. The typed
// phone number is kept; code slots, errors and the resend countdown are not.
// Any backend call still in flight is discarded when it completes.
func (c *Controller) Dismiss() {
	c.resetAndAudit("dismiss", true)
}

// Reset is Dismiss that also forgets the typed phone number.
func (c *Controller) Reset() {
	c.resetAndAudit("reset", false)
}

// Acknowledge closes a verified session. It is a no-op outside StepVerified.
func (c *Controller) Acknowledge() bool {
	c.mu.Lock()
	if c.closed || c.state.Step != StepVerified {
		c.mu.Unlock()
		return false
	}
	event := c.resetLocked("acknowledge", true)
	c.mu.Unlock()

	c.emitAudit(event)
	return true
}

// Close tears the session down: the countdown is cancelled, in-flight calls are
// orphaned and every subscriber channel is closed. Later calls are no-ops.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.resetLocked("close", false)
	c.closed = true
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()

	c.audit.Close()
	c.logger.Debug("controller closed")
}

func (c *Controller) resetAndAudit(reason string, keepPhone bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	event := c.resetLocked(reason, keepPhone)
	c.mu.Unlock()

	c.emitAudit(event)
}

// resetLocked moves to a new generation. Callers must hold c.mu.
func (c *Controller) resetLocked(reason string, keepPhone bool) AuditEvent {
	c.stopTimerLocked()

	prev := c.state
	next := Session{
		ID:         uuid.NewString(),
		Generation: prev.Generation + 1,
		Step:       StepPhoneEntry,
	}
	if keepPhone {
		next.PhoneDigits = prev.PhoneDigits
	}
	c.state = next

	c.metrics.Inc(MetricSessionReset)
	c.logger.Debug("session reset",
		zap.String("reason", reason),
		zap.String("previous_session_id", prev.ID),
		zap.String("session_id", next.ID),
		zap.Stringer("previous_step", prev.Step),
		zap.Bool("abandoned_call", prev.Loading),
	)
	c.publishLocked()

	return AuditEvent{
		EventType: AuditSessionReset,
		SessionID: prev.ID,
		Step:      prev.Step.String(),
		Success:   true,
		Metadata:  map[string]string{"reason": reason, "next_session_id": next.ID},
	}
}

/*
====================================
BACKEND CALLS
====================================
*/

// SubmitPhone sends a code to the typed number. It returns false without doing
// anything when the step is not PhoneEntry, the number is incomplete or a call
// is already running. Otherwise it blocks until the backend answers; the
// outcome is reported through the session, never as an error.
func (c *Controller) SubmitPhone(ctx context.Context) bool {
	c.mu.Lock()
	if c.closed || !c.state.CanSubmitPhone() {
		c.mu.Unlock()
		return false
	}
	phone := E164(c.cfg.Flow.CountryCode, c.state.PhoneDigits)
	gen := c.beginCallLocked()
	c.mu.Unlock()

	c.sendCode(ctx, gen, phone, false)
	return true
}

// Resend requests a fresh code for the number already accepted in this
// session. It requires StepCodeEntry, an expired countdown and no running call.
func (c *Controller) Resend(ctx context.Context) bool {
	c.mu.Lock()
	if c.closed || !c.state.CanResend() {
		c.mu.Unlock()
		return false
	}
	phone := E164(c.cfg.Flow.CountryCode, c.state.PhoneDigits)
	gen := c.beginCallLocked()
	c.mu.Unlock()

	c.metrics.Inc(MetricResendRequest)
	c.sendCode(ctx, gen, phone, true)
	return true
}

// SubmitCode verifies the six typed digits. It returns false without doing
// anything unless the step is CodeEntry, every slot is filled and no call is
// running. A rejected code sets OTPError and makes resend available at once.
func (c *Controller) SubmitCode(ctx context.Context) bool {
	c.mu.Lock()
	if c.closed || !c.state.CanSubmitCode() {
		c.mu.Unlock()
		return false
	}
	code, _ := c.state.OTPSlots.Code()
	phone := E164(c.cfg.Flow.CountryCode, c.state.PhoneDigits)
	gen := c.beginCallLocked()
	c.mu.Unlock()

	c.verifyCode(ctx, gen, phone, code)
	return true
}

// beginCallLocked marks the session busy and returns its generation.
func (c *Controller) beginCallLocked() uint64 {
	c.state.Loading = true
	c.state.LastError = ""
	c.state.LastFailure = FailureNone
	c.publishLocked()
	return c.state.Generation
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.cfg.Flow.CallTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.Flow.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *Controller) sendCode(ctx context.Context, gen uint64, phone string, resend bool) {
	c.metrics.Inc(MetricSendRequest)

	callCtx, cancel := c.callContext(ctx)
	start := time.Now()
	err := c.backend.SendCode(callCtx, phone)
	elapsed := time.Since(start)
	cancel()
	c.metrics.Observe(MetricSendLatency, elapsed)

	masked := MaskPhone(phone)

	c.mu.Lock()
	if c.state.Generation != gen {
		sessionID := c.state.ID
		c.mu.Unlock()
		c.discardStale("send", sessionID, masked)
		return
	}

	c.state.Loading = false
	sessionID := c.state.ID
	step := c.state.Step

	if err != nil {
		c.state.LastFailure = FailureSend
		c.state.LastError = FailureSend.Message()
		c.publishLocked()
		c.mu.Unlock()

		c.metrics.Inc(MetricSendFailure)
		c.logger.Warn("send code failed",
			zap.String("session_id", sessionID),
			zap.String("phone", masked),
			zap.Bool("resend", resend),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		c.emitAudit(AuditEvent{
			EventType: AuditCodeSendFailed,
			SessionID: sessionID,
			Phone:     masked,
			Step:      step.String(),
			Error:     ErrSendFailed.Error(),
			Metadata:  map[string]string{"resend": boolString(resend)},
		})
		return
	}

	c.state.Step = StepCodeEntry
	c.state.LastError = ""
	c.state.LastFailure = FailureNone
	c.startResendTimerLocked()
	c.publishLocked()
	c.mu.Unlock()

	c.metrics.Inc(MetricSendSuccess)
	c.logger.Info("code sent",
		zap.String("session_id", sessionID),
		zap.String("phone", masked),
		zap.Bool("resend", resend),
		zap.Duration("elapsed", elapsed),
	)
	eventType := AuditCodeSent
	if resend {
		eventType = AuditCodeResent
	}
	c.emitAudit(AuditEvent{
		EventType: eventType,
		SessionID: sessionID,
		Phone:     masked,
		Step:      StepCodeEntry.String(),
		Success:   true,
	})
}

func (c *Controller) verifyCode(ctx context.Context, gen uint64, phone, code string) {
	c.metrics.Inc(MetricVerifyRequest)

	callCtx, cancel := c.callContext(ctx)
	start := time.Now()
	grant, err := c.backend.VerifyCode(callCtx, phone, code)
	elapsed := time.Since(start)
	cancel()
	c.metrics.Observe(MetricVerifyLatency, elapsed)

	masked := MaskPhone(phone)

	c.mu.Lock()
	if c.state.Generation != gen {
		sessionID := c.state.ID
		c.mu.Unlock()
		c.discardStale("verify", sessionID, masked)
		return
	}

	c.state.Loading = false
	sessionID := c.state.ID

	if err != nil {
		c.state.OTPError = true
		c.state.LastFailure = FailureVerify
		c.state.LastError = FailureVerify.Message()
		c.stopTimerLocked()
		c.state.ResendCooldown = 0
		c.publishLocked()
		c.mu.Unlock()

		c.metrics.Inc(MetricVerifyFailure)
		c.logger.Warn("verify code failed",
			zap.String("session_id", sessionID),
			zap.String("phone", masked),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		c.emitAudit(AuditEvent{
			EventType: AuditCodeRejected,
			SessionID: sessionID,
			Phone:     masked,
			Step:      StepCodeEntry.String(),
			Error:     ErrVerifyFailed.Error(),
		})
		return
	}

	c.state.Step = StepVerified
	c.state.Grant = grant
	c.state.OTPError = false
	c.stopTimerLocked()
	c.state.ResendCooldown = 0
	c.publishLocked()
	c.mu.Unlock()

	c.metrics.Inc(MetricVerifySuccess)
	fields := []zap.Field{
		zap.String("session_id", sessionID),
		zap.String("phone", masked),
		zap.Duration("elapsed", elapsed),
	}
	meta := map[string]string{}
	if grant != nil && grant.Subject != "" {
		fields = append(fields, zap.String("subject", grant.Subject))
		meta["subject"] = grant.Subject
	}
	c.logger.Info("code verified", fields...)
	c.emitAudit(AuditEvent{
		EventType: AuditCodeVerified,
		SessionID: sessionID,
		Phone:     masked,
		Step:      StepVerified.String(),
		Success:   true,
		Metadata:  meta,
	})
}

func (c *Controller) discardStale(op, sessionID, maskedPhone string) {
	c.metrics.Inc(MetricStaleCompletion)
	c.logger.Debug("discarding stale completion",
		zap.String("op", op),
		zap.String("session_id", sessionID),
		zap.String("phone", maskedPhone),
	)
	c.emitAudit(AuditEvent{
		EventType: AuditStaleCompletion,
		SessionID: sessionID,
		Phone:     maskedPhone,
		Success:   true,
		Metadata:  map[string]string{"op": op},
	})
}

func (c *Controller) emitAudit(event AuditEvent) {
	if c.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	c.audit.Emit(context.Background(), event)
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
