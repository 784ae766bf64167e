package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nholik/service-sentinel/internal/healthcheck"
	"github.com/nholik/service-sentinel/internal/supervisor"
	"github.com/nholik/service-sentinel/internal/telemetry"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Start launches the query and metrics HTTP servers as configured.
func Start(ctx context.Context, logger zerolog.Logger, sup *supervisor.Supervisor, tracker *healthcheck.Tracker, telem *telemetry.Metrics, pollInterval time.Duration, queryPort, metricsPort int) {
	if queryPort == 0 && metricsPort == 0 {
		return
	}

	if queryPort > 0 && metricsPort > 0 && queryPort == metricsPort {
		mux := http.NewServeMux()
		RegisterQueryRoutes(mux, sup, tracker, pollInterval)
		registerMetricsRoute(mux, telem)
		startServer(ctx, logger, mux, queryPort, "query/metrics")
		return
	}

	if queryPort > 0 {
		mux := http.NewServeMux()
		RegisterQueryRoutes(mux, sup, tracker, pollInterval)
		startServer(ctx, logger, mux, queryPort, "query")
	}

	if metricsPort > 0 {
		mux := http.NewServeMux()
		registerMetricsRoute(mux, telem)
		startServer(ctx, logger, mux, metricsPort, "metrics")
	}
}

// RegisterQueryRoutes mounts the query surface on the given mux.
func RegisterQueryRoutes(mux *http.ServeMux, sup *supervisor.Supervisor, tracker *healthcheck.Tracker, pollInterval time.Duration) {
	mux.HandleFunc("GET /health/comprehensive", comprehensiveHealthHandler(sup))
	mux.HandleFunc("GET /metrics/all", allMetricsHandler(sup))
	mux.HandleFunc("GET /services/status", serviceStatusHandler(sup))
	mux.HandleFunc("GET /performance/summary", performanceSummaryHandler(sup))
	mux.HandleFunc("GET /alerts/active", activeAlertsHandler(sup))
	mux.HandleFunc("POST /services/{name}/restart", restartHandler(sup))
	mux.HandleFunc("/healthz", healthcheck.HealthHandler(tracker, pollInterval))
	mux.HandleFunc("/readyz", healthcheck.ReadyHandler(tracker))
}

func registerMetricsRoute(mux *http.ServeMux, telem *telemetry.Metrics) {
	if telem == nil {
		return
	}
	mux.Handle("/metrics", telem.Handler())
}

func startServer(ctx context.Context, logger zerolog.Logger, handler http.Handler, port int, label string) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("server", label).Int("port", port).Msg("http server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("server", label).Int("port", port).Msg("http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Str("server", label).Int("port", port).Msg("http server shutdown failed")
		}
	}()
}
