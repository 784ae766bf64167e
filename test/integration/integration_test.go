//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nholik/service-sentinel/internal/config"
	"github.com/nholik/service-sentinel/internal/healthcheck"
	"github.com/nholik/service-sentinel/internal/registry"
	"github.com/nholik/service-sentinel/internal/server"
	"github.com/nholik/service-sentinel/internal/service"
	"github.com/nholik/service-sentinel/internal/supervisor"
	"github.com/rs/zerolog"
)

// TestSupervisorEndToEnd drives the full stack against live HTTP
// endpoints: probe services are registered for two local backends, the
// supervisor starts them in dependency order, polls health and metrics,
// and the query surface reflects a mid-run outage and recovery.
//
// Run with: go test -tags=integration -v ./test/integration/...
func TestSupervisorEndToEnd(t *testing.T) {
	var databaseHealthy atomic.Bool
	databaseHealthy.Store(true)

	databaseBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if databaseHealthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer databaseBackend.Close()

	apiBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer apiBackend.Close()

	cfg := config.Config{
		PollInterval:       50 * time.Millisecond,
		StartTimeout:       5 * time.Second,
		StopTimeout:        5 * time.Second,
		HealthCheckTimeout: 2 * time.Second,
		HealthMaxAge:       time.Minute,
		MetricsHistorySize: 50,
		AlertRetention:     time.Hour,
	}

	reg := registry.New()
	check := healthcheck.NewTracker()
	sup := supervisor.New(zerolog.Nop(), cfg, reg, nil, nil, check)

	registerProbe(t, sup, "database", databaseBackend.URL, service.Required, nil, cfg)
	registerProbe(t, sup, "api", apiBackend.URL, service.Required, []string{"database"}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	waitFor(t, 5*time.Second, func() bool { return check.Ready() })

	mux := http.NewServeMux()
	server.RegisterQueryRoutes(mux, sup, check, cfg.PollInterval)
	querySrv := httptest.NewServer(mux)
	defer querySrv.Close()

	// Both services polled healthy.
	waitFor(t, 5*time.Second, func() bool {
		return compositeHealth(t, querySrv.URL) == string(service.StatusHealthy)
	})

	states := serviceStates(t, querySrv.URL)
	if states["database"] != string(service.StateRunning) || states["api"] != string(service.StateRunning) {
		t.Fatalf("expected both services running, got %v", states)
	}

	// Take the database backend down; the composite should degrade and an
	// alert should surface.
	databaseHealthy.Store(false)
	waitFor(t, 5*time.Second, func() bool {
		return compositeHealth(t, querySrv.URL) != string(service.StatusHealthy)
	})
	waitFor(t, 5*time.Second, func() bool {
		return len(activeAlerts(t, querySrv.URL)) > 0
	})

	// Bring it back; the alert clears and the verdict recovers.
	databaseHealthy.Store(true)
	waitFor(t, 5*time.Second, func() bool {
		return compositeHealth(t, querySrv.URL) == string(service.StatusHealthy)
	})
	waitFor(t, 5*time.Second, func() bool {
		return len(activeAlerts(t, querySrv.URL)) == 0
	})

	// Metrics accumulated while polling.
	waitFor(t, 5*time.Second, func() bool {
		history, err := sup.MetricHistory("database", 0)
		return err == nil && len(history) > 1
	})

	// Restart through the HTTP surface.
	resp, err := http.Post(querySrv.URL+"/services/api/restart", "application/json", nil)
	if err != nil {
		t.Fatalf("restart request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("restart: expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("supervisor run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not shut down")
	}
}

func registerProbe(t *testing.T, sup *supervisor.Supervisor, name, url string, criticality service.Criticality, deps []string, cfg config.Config) {
	t.Helper()
	probe, err := service.NewHTTPProbe(name, url, cfg.HealthCheckTimeout)
	if err != nil {
		t.Fatalf("new probe %s: %v", name, err)
	}
	desc := service.Descriptor{Name: name, DependsOn: deps, Criticality: criticality}
	if err := sup.Register(desc, probe); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func compositeHealth(t *testing.T, baseURL string) string {
	t.Helper()
	var verdict struct {
		Composite string `json:"composite"`
	}
	getJSON(t, baseURL+"/health/comprehensive", &verdict)
	return verdict.Composite
}

func serviceStates(t *testing.T, baseURL string) map[string]string {
	t.Helper()
	states := map[string]string{}
	getJSON(t, baseURL+"/services/status", &states)
	return states
}

func activeAlerts(t *testing.T, baseURL string) []json.RawMessage {
	t.Helper()
	var payload struct {
		Alerts []json.RawMessage `json:"alerts"`
	}
	getJSON(t, baseURL+"/alerts/active", &payload)
	return payload.Alerts
}

func getJSON(t *testing.T, url string, target any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}
