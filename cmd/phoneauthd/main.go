// Command phoneauthd serves the phone OTP endpoints backed by Redis and an
// SMS provider, or by the in-memory dev outbox.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spacekayak/phoneauth/config"
	"github.com/spacekayak/phoneauth/internal/app"
	"github.com/spacekayak/phoneauth/internal/telemetry"
	"github.com/spacekayak/phoneauth/logging"
	"github.com/spacekayak/phoneauth/metrics/export/otel"
	"github.com/spacekayak/phoneauth/metrics/export/prometheus"
	"github.com/spacekayak/phoneauth/server"
)

const serviceName = "phoneauthd"

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString(serviceName + ": " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	logger := log.Logger.Named(serviceName)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("close dependencies", zap.Error(err))
		}
	}()

	var sources []prometheus.MetricsSource
	if deps.Local != nil {
		sources = append(sources, deps.Local)

		provider, err := telemetry.NewProvider(ctx, telemetry.Options{
			Endpoint:    cfg.OTLPEndpoint,
			ServiceName: serviceName,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		provider.SetGlobal()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = provider.Shutdown(shutdownCtx)
		}()

		exporter, err := otel.NewExporter(provider.MeterProvider.Meter(serviceName), deps.Local)
		if err != nil {
			return err
		}
		defer func() { _ = exporter.Close() }()
	}

	router, err := server.New(server.Options{
		Backend: deps.Backend,
		Grants:  deps.Grants,
		Outbox:  deps.Outbox,
		Metrics: sources,
		Health:  deps.Health,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("backend", cfg.AuthBackend),
			zap.Bool("dev_otp", deps.Outbox != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
