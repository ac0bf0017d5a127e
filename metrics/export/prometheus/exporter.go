package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/spacekayak/phoneauth"
	"github.com/spacekayak/phoneauth/metrics/export/internaldefs"
)

// MetricsSource is satisfied by *phoneauth.Controller.
type MetricsSource interface {
	MetricsSnapshot() phoneauth.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders phoneauth metrics in Prometheus text exposition format.
type Exporter struct {
	sources []MetricsSource
}

// NewExporter returns an exporter summing the snapshots of every source, so
// one endpoint can cover the metrics of several controllers or backends.
func NewExporter(sources ...MetricsSource) *Exporter {
	return &Exporter{sources: sources}
}

// Handler returns an http.Handler that serves Render.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render writes the current metrics. It returns "" when no source has metrics
// enabled.
func (p *Exporter) Render() string {
	if p == nil || len(p.sources) == 0 {
		return ""
	}

	snapshot, dropped := p.collect()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(8192)

	for _, def := range internaldefs.CounterDefs {
		writeCounter(&b, def.Name, def.Help, snapshot.Counters[def.ID])
	}

	for _, def := range internaldefs.HistogramDefs {
		nonCumulative := internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID])
		cumulative := internaldefs.CumulativeBuckets(nonCumulative)
		writeHistogram(&b, def.Name, def.Help, cumulative)
	}

	writeCounter(&b, internaldefs.AuditDroppedName, "Audit events dropped due to dispatcher backpressure.", dropped)

	return b.String()
}

func (p *Exporter) collect() (phoneauth.MetricsSnapshot, uint64) {
	merged := phoneauth.MetricsSnapshot{
		Counters:   map[phoneauth.MetricID]uint64{},
		Histograms: map[phoneauth.MetricID][]uint64{},
	}
	var dropped uint64
	for _, src := range p.sources {
		if src == nil {
			continue
		}
		snap := src.MetricsSnapshot()
		for id, v := range snap.Counters {
			merged.Counters[id] += v
		}
		for id, buckets := range snap.Histograms {
			dst := merged.Histograms[id]
			if len(dst) < len(buckets) {
				dst = append(dst, make([]uint64, len(buckets)-len(dst))...)
			}
			for i, v := range buckets {
				dst[i] += v
			}
			merged.Histograms[id] = dst
		}
		dropped += src.AuditDropped()
	}
	return merged, dropped
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" histogram\n")

	for i, le := range internaldefs.HistogramBounds {
		b.WriteString(name)
		b.WriteString("_bucket{le=\"")
		b.WriteString(le)
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(cumulative[i], 10))
		b.WriteByte('\n')
	}

	count := cumulative[len(cumulative)-1]
	b.WriteString(name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(count, 10))
	b.WriteByte('\n')

	// Snapshots carry no sum.
	b.WriteString(name)
	b.WriteString("_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
