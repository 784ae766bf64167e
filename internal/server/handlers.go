package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nholik/service-sentinel/internal/service"
	"github.com/nholik/service-sentinel/internal/supervisor"
)

const defaultSummaryWindow = 15 * time.Minute

// Query endpoints report unhealthy services as data, never as transport
// errors. Only malformed requests (unknown name, bad window, invalid
// state) produce request-level errors.

func comprehensiveHealthHandler(sup *supervisor.Supervisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sup.ComprehensiveHealth())
	}
}

func allMetricsHandler(sup *supervisor.Supervisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sup.AllMetrics())
	}
}

func serviceStatusHandler(sup *supervisor.Supervisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sup.ServiceStatus())
	}
}

func performanceSummaryHandler(sup *supervisor.Supervisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window := defaultSummaryWindow
		if raw := r.URL.Query().Get("window"); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, "invalid window: must be a positive duration")
				return
			}
			window = parsed
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"window":   window.String(),
			"services": sup.PerformanceSummary(window),
		})
	}
}

func activeAlertsHandler(sup *supervisor.Supervisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"alerts": sup.ActiveAlerts(),
		})
	}
}

func restartHandler(sup *supervisor.Supervisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if name == "" {
			writeError(w, http.StatusBadRequest, "service name is required")
			return
		}

		err := sup.RestartService(r.Context(), name)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]any{
				"service":   name,
				"restarted": true,
			})
		case errors.Is(err, service.ErrUnknownService):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrInvalidState):
			writeError(w, http.StatusConflict, err.Error())
		default:
			// The restart was accepted but the service failed to come
			// back; report that as data on the restart resource.
			writeJSON(w, http.StatusOK, map[string]any{
				"service":   name,
				"restarted": false,
				"error":     err.Error(),
			})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
