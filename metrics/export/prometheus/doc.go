// Package prometheus renders phoneauth metrics in Prometheus text exposition
// format.
//
// [NewExporter] accepts one or more metric sources and exposes an
// [http.Handler]. Counter names are phoneauth_*_total; latency histograms are
// phoneauth_send_latency_seconds and phoneauth_verify_latency_seconds. Nothing
// is registered globally; callers mount the Handler.
package prometheus
