package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nholik/service-sentinel/internal/alert"
	"github.com/nholik/service-sentinel/internal/config"
	"github.com/nholik/service-sentinel/internal/healthcheck"
	"github.com/nholik/service-sentinel/internal/registry"
	"github.com/nholik/service-sentinel/internal/service"
	"github.com/rs/zerolog"
)

type fakeService struct {
	mu       sync.Mutex
	startErr error
	stopped  bool
}

func (f *fakeService) Start(context.Context) error { return f.startErr }

func (f *fakeService) Stop(context.Context) error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	return nil
}

func (f *fakeService) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeService) CheckHealth(context.Context) (service.HealthReport, error) {
	return service.HealthReport{Status: service.StatusHealthy}, nil
}

func (f *fakeService) CollectMetrics() service.MetricSnapshot {
	return service.MetricSnapshot{Values: map[string]float64{"checks_total": 1}}
}

func testConfig() config.Config {
	return config.Config{
		PollInterval:       10 * time.Millisecond,
		StartTimeout:       time.Second,
		StopTimeout:        time.Second,
		HealthCheckTimeout: time.Second,
		HealthMaxAge:       time.Minute,
		MetricsHistorySize: 10,
		AlertRetention:     time.Hour,
	}
}

func newSupervisor(t *testing.T) (*Supervisor, *healthcheck.Tracker) {
	t.Helper()
	check := healthcheck.NewTracker()
	sup := New(zerolog.Nop(), testConfig(), registry.New(), nil, nil, check)
	return sup, check
}

func TestRun_PollsAndTearsDown(t *testing.T) {
	sup, check := newSupervisor(t)
	database := &fakeService{}
	api := &fakeService{}
	if err := sup.Register(service.Descriptor{Name: "database", Criticality: service.Required}, database); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := sup.Register(service.Descriptor{Name: "api", Criticality: service.Required, DependsOn: []string{"database"}}, api); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for !check.Ready() {
		select {
		case <-deadline:
			t.Fatal("no poll cycle completed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	verdict := sup.ComprehensiveHealth()
	if verdict.Composite != service.StatusHealthy {
		t.Fatalf("expected healthy composite, got %s", verdict.Composite)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not shut down")
	}

	if !database.Stopped() || !api.Stopped() {
		t.Fatal("teardown must stop every started service")
	}
	states := sup.ServiceStatus()
	if states["database"] != service.StateStopped || states["api"] != service.StateStopped {
		t.Fatalf("expected stopped states after teardown, got %v", states)
	}
}

func TestRun_RequiredStartupFailure(t *testing.T) {
	sup, _ := newSupervisor(t)
	broken := &fakeService{startErr: errors.New("bind: address in use")}
	dependent := &fakeService{}
	if err := sup.Register(service.Descriptor{Name: "database", Criticality: service.Required}, broken); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := sup.Register(service.Descriptor{Name: "api", Criticality: service.Required, DependsOn: []string{"database"}}, dependent); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := sup.Run(context.Background())
	var startupErr *service.StartupError
	if !errors.As(err, &startupErr) {
		t.Fatalf("expected StartupError, got %v", err)
	}
	if startupErr.Service != "database" {
		t.Fatalf("failure should cite database, got %s", startupErr.Service)
	}

	active := sup.ActiveAlerts()
	if len(active) == 0 {
		t.Fatal("startup failure must raise alerts")
	}
	found := false
	for _, a := range active {
		if a.Service == "database" && a.Cause == alert.CauseStartupFailed {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a startup-failed alert for database, got %+v", active)
	}
}

func TestMetricHistory(t *testing.T) {
	sup, _ := newSupervisor(t)
	if err := sup.Register(service.Descriptor{Name: "api", Criticality: service.Required}, &fakeService{}); err != nil {
		t.Fatalf("register: %v", err)
	}

	history, err := sup.MetricHistory("api", 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history before any poll, got %d", len(history))
	}

	if _, err := sup.MetricHistory("ghost", 5); !errors.Is(err, service.ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}
}

func TestRestartService_Unknown(t *testing.T) {
	sup, _ := newSupervisor(t)
	if err := sup.RestartService(context.Background(), "ghost"); !errors.Is(err, service.ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}
}
