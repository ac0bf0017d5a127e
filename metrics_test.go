package phoneauth

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricSendSuccess)

	if got := m.Value(MetricSendSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricSendSuccess)
	m.Observe(MetricSendLatency, time.Millisecond)

	if m.Enabled() || m.Value(MetricSendSuccess) != 0 {
		t.Fatal("expected nil metrics to record nothing")
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap.Counters)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricVerifyFailure)
	m.Inc(MetricVerifyFailure)
	m.Inc(MetricVerifyFailure)

	if got := m.Value(MetricVerifyFailure); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricSendRequest)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricSendRequest); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		20 * time.Millisecond,
		80 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		900 * time.Millisecond,
		2 * time.Second,
		8 * time.Second,
		30 * time.Second,
	}

	for _, d := range observations {
		m.Observe(MetricVerifyLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricVerifyLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsObserveIgnoresCounterIDs(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Observe(MetricSendSuccess, time.Millisecond)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricSendSuccess]; ok {
		t.Fatal("counter IDs must not produce histograms")
	}
	if _, ok := snap.Counters[MetricSendLatency]; ok {
		t.Fatal("latency IDs must not appear as counters")
	}
}

func TestControllerRecordsLatency(t *testing.T) {
	c := newTestController(t, newFakeBackend(), func(cfg *Config) {
		cfg.Metrics.EnableLatencyHistograms = true
	})
	toCodeEntry(t, c)
	typeCode(t, c, "123456")
	c.SubmitCode(context.Background())

	snap := c.MetricsSnapshot()
	var sends, verifies uint64
	for _, v := range snap.Histograms[MetricSendLatency] {
		sends += v
	}
	for _, v := range snap.Histograms[MetricVerifyLatency] {
		verifies += v
	}
	if sends != 1 || verifies != 1 {
		t.Fatalf("expected one sample each, got send=%d verify=%d", sends, verifies)
	}
	if snap.Counters[MetricTimerStarted] != 1 {
		t.Fatalf("expected one timer start, got %d", snap.Counters[MetricTimerStarted])
	}
	if snap.Counters[MetricTimerCancelled] != 1 {
		t.Fatalf("expected verification to cancel the timer, got %d", snap.Counters[MetricTimerCancelled])
	}
}
