package phoneauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram tracked by [Metrics].
type MetricID uint16

const (
	// MetricSendRequest counts send-code calls started by the controller (initial and resend).
	MetricSendRequest MetricID = iota
	// MetricSendSuccess counts send-code calls that succeeded.
	MetricSendSuccess
	// MetricSendFailure counts send-code calls that failed.
	MetricSendFailure
	// MetricResendRequest counts resend actions that passed their guard.
	MetricResendRequest
	// MetricVerifyRequest counts verify-code calls started by the controller.
	MetricVerifyRequest
	// MetricVerifySuccess counts accepted codes.
	MetricVerifySuccess
	// MetricVerifyFailure counts rejected codes and failed verify calls.
	MetricVerifyFailure
	// MetricStaleCompletion counts backend completions discarded because the session was reset.
	MetricStaleCompletion
	// MetricSessionReset counts dismiss/reset/acknowledge transitions.
	MetricSessionReset
	// MetricTimerStarted counts resend countdowns started.
	MetricTimerStarted
	// MetricTimerExpired counts resend countdowns that reached zero.
	MetricTimerExpired
	// MetricTimerCancelled counts resend countdowns cancelled before reaching zero.
	MetricTimerCancelled
	// MetricBackendCodeIssued counts codes generated and delivered by a self-hosted backend.
	MetricBackendCodeIssued
	// MetricBackendSendRateLimited counts sends refused by backend rate limits or cooldowns.
	MetricBackendSendRateLimited
	// MetricBackendVerifyRejected counts codes a self-hosted backend rejected.
	MetricBackendVerifyRejected
	// MetricBackendAttemptsExceeded counts challenges dropped after too many wrong codes.
	MetricBackendAttemptsExceeded
	// MetricBackendGrantIssued counts grants issued after successful verification.
	MetricBackendGrantIssued
	// MetricSendLatency is the send-code latency histogram.
	MetricSendLatency
	// MetricVerifyLatency is the verify-code latency histogram.
	MetricVerifyLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and latency histograms.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metric values.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// NewMetrics does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether latency histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc describes the inc operation and its observable behavior.
//
// Inc does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the histogram for id. Only latency IDs accept samples.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if !isLatencyMetric(id) {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 2),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isLatencyMetric(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range []MetricID{MetricSendLatency, MetricVerifyLatency} {
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func isLatencyMetric(id MetricID) bool {
	return id == MetricSendLatency || id == MetricVerifyLatency
}

// Backend calls go over the network, so buckets span 50ms to 10s.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 50:
		return 0
	case ms <= 100:
		return 1
	case ms <= 250:
		return 2
	case ms <= 500:
		return 3
	case ms <= 1000:
		return 4
	case ms <= 2500:
		return 5
	case ms <= 10000:
		return 6
	default:
		return 7
	}
}
