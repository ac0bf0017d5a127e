package internaldefs

import (
	"github.com/spacekayak/phoneauth"
)

// CounterDef names one counter.
type CounterDef struct {
	ID   phoneauth.MetricID
	Name string
	Help string
}

// HistogramDef names one latency histogram.
type HistogramDef struct {
	ID   phoneauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: phoneauth.MetricSendRequest, Name: "phoneauth_send_request_total", Help: "Send-code calls started, including resends."},
	{ID: phoneauth.MetricSendSuccess, Name: "phoneauth_send_success_total", Help: "Send-code calls that succeeded."},
	{ID: phoneauth.MetricSendFailure, Name: "phoneauth_send_failure_total", Help: "Send-code calls that failed."},
	{ID: phoneauth.MetricResendRequest, Name: "phoneauth_resend_request_total", Help: "Resend actions accepted by the controller."},
	{ID: phoneauth.MetricVerifyRequest, Name: "phoneauth_verify_request_total", Help: "Verify-code calls started."},
	{ID: phoneauth.MetricVerifySuccess, Name: "phoneauth_verify_success_total", Help: "Codes accepted."},
	{ID: phoneauth.MetricVerifyFailure, Name: "phoneauth_verify_failure_total", Help: "Codes rejected or verify calls failed."},
	{ID: phoneauth.MetricStaleCompletion, Name: "phoneauth_stale_completion_total", Help: "Backend completions discarded after a session reset."},
	{ID: phoneauth.MetricSessionReset, Name: "phoneauth_session_reset_total", Help: "Sessions reset by dismiss, reset or acknowledge."},
	{ID: phoneauth.MetricTimerStarted, Name: "phoneauth_resend_timer_started_total", Help: "Resend countdowns started."},
	{ID: phoneauth.MetricTimerExpired, Name: "phoneauth_resend_timer_expired_total", Help: "Resend countdowns that reached zero."},
	{ID: phoneauth.MetricTimerCancelled, Name: "phoneauth_resend_timer_cancelled_total", Help: "Resend countdowns cancelled early."},
	{ID: phoneauth.MetricBackendCodeIssued, Name: "phoneauth_backend_code_issued_total", Help: "Codes generated and delivered by the local backend."},
	{ID: phoneauth.MetricBackendSendRateLimited, Name: "phoneauth_backend_send_rate_limited_total", Help: "Sends refused by rate limits or the resend cooldown."},
	{ID: phoneauth.MetricBackendVerifyRejected, Name: "phoneauth_backend_verify_rejected_total", Help: "Wrong codes submitted to the local backend."},
	{ID: phoneauth.MetricBackendAttemptsExceeded, Name: "phoneauth_backend_attempts_exceeded_total", Help: "Challenges dropped after too many wrong codes."},
	{ID: phoneauth.MetricBackendGrantIssued, Name: "phoneauth_backend_grant_issued_total", Help: "Grants issued after successful verification."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: phoneauth.MetricSendLatency, Name: "phoneauth_send_latency_seconds", Help: "Send-code backend call latency."},
	{ID: phoneauth.MetricVerifyLatency, Name: "phoneauth_verify_latency_seconds", Help: "Verify-code backend call latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "phoneauth_audit_dropped_total"

// HistogramBounds are the upper bounds of the eight buckets in seconds.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"10",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form valid inside metric names.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"10",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight bucket array, padding with
// zeros and dropping extras.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
