// Package telemetry builds the OpenTelemetry MeterProvider used by the
// phoneauth binaries, exporting over OTLP gRPC when an endpoint is configured.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.uber.org/zap"
)

const DefaultInterval = 10 * time.Second

// Provider holds the MeterProvider and its shutdown hook.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Shutdown      func(context.Context) error
}

// Options configures NewProvider.
type Options struct {
	// Endpoint is host:port or a URL. Only the host is dialled. Empty
	// disables export and yields a provider without readers.
	Endpoint    string
	ServiceName string
	// Insecure forces plaintext even for https endpoints.
	Insecure bool
	Interval time.Duration
	// Reader, when set, is used instead of an OTLP exporter. Tests pass a
	// ManualReader here.
	Reader sdkmetric.Reader
	Logger *zap.Logger
}

// NewProvider returns a MeterProvider exporting every Interval.
func NewProvider(ctx context.Context, opts Options) (*Provider, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(opts.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	reader := opts.Reader
	if reader == nil {
		endpoint := strings.TrimSpace(opts.Endpoint)
		if endpoint == "" {
			mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
			return &Provider{MeterProvider: mp, Shutdown: mp.Shutdown}, nil
		}

		target, insecure, err := grpcTarget(endpoint)
		if err != nil {
			return nil, err
		}
		metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(target)}
		if insecure || opts.Insecure {
			metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, metricOpts...)
		if err != nil {
			return nil, fmt.Errorf("telemetry: otlp exporter: %w", err)
		}

		interval := opts.Interval
		if interval <= 0 {
			interval = DefaultInterval
		}
		reader = sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))
		logger.Info("otlp metric export enabled", zap.String("endpoint", target), zap.Duration("interval", interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	shutdown := func(ctx context.Context) error {
		if err := mp.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
			return err
		}
		return nil
	}
	return &Provider{MeterProvider: mp, Shutdown: shutdown}, nil
}

// SetGlobal installs the MeterProvider as the otel global.
func (p *Provider) SetGlobal() {
	if p != nil && p.MeterProvider != nil {
		otel.SetMeterProvider(p.MeterProvider)
	}
}

// grpcTarget reduces endpoint to host:port. Non-https schemes are dialled
// without TLS.
func grpcTarget(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("telemetry: invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("telemetry: invalid OTLP endpoint %q: missing host", endpoint)
	}
	return u.Host, u.Scheme != "https", nil
}
