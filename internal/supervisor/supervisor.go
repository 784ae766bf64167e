package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/nholik/service-sentinel/internal/alert"
	"github.com/nholik/service-sentinel/internal/config"
	"github.com/nholik/service-sentinel/internal/health"
	"github.com/nholik/service-sentinel/internal/healthcheck"
	"github.com/nholik/service-sentinel/internal/lifecycle"
	"github.com/nholik/service-sentinel/internal/metrics"
	"github.com/nholik/service-sentinel/internal/notify"
	"github.com/nholik/service-sentinel/internal/poller"
	"github.com/nholik/service-sentinel/internal/registry"
	"github.com/nholik/service-sentinel/internal/service"
	"github.com/nholik/service-sentinel/internal/telemetry"
	"github.com/rs/zerolog"
)

// Supervisor is the composition root: it owns the registry, the lifecycle
// coordinator, and the aggregators, and exposes the unified query surface.
// It holds no business logic of its own.
type Supervisor struct {
	logger   zerolog.Logger
	cfg      config.Config
	reg      *registry.Registry
	coord    *lifecycle.Coordinator
	health   *health.Aggregator
	metrics  *metrics.Aggregator
	tracker  *alert.Tracker
	notifier notify.Notifier
	telem    *telemetry.Metrics
	check    *healthcheck.Tracker

	mu           sync.RWMutex
	pollers      map[string]*poller.Poller
	pollerErrors map[string]error
}

// New wires a Supervisor from the given configuration and collaborators.
func New(logger zerolog.Logger, cfg config.Config, reg *registry.Registry, notifier notify.Notifier, telem *telemetry.Metrics, check *healthcheck.Tracker) *Supervisor {
	return &Supervisor{
		logger:       logger,
		cfg:          cfg,
		reg:          reg,
		coord:        lifecycle.New(logger, reg, cfg.StartTimeout, cfg.StopTimeout),
		health:       health.NewAggregator(logger, reg, cfg.HealthMaxAge, cfg.HealthCheckTimeout),
		metrics:      metrics.NewAggregator(reg, cfg.MetricsHistorySize),
		tracker:      alert.NewTracker(logger, cfg.AlertRetention),
		notifier:     notifier,
		telem:        telem,
		check:        check,
		pollers:      make(map[string]*poller.Poller),
		pollerErrors: make(map[string]error),
	}
}

// Register adds a managed service. Must happen before Run.
func (s *Supervisor) Register(desc service.Descriptor, svc service.Service) error {
	return s.reg.Register(desc, svc)
}

// Coordinator exposes the lifecycle coordinator for callers that need
// direct state queries.
func (s *Supervisor) Coordinator() *lifecycle.Coordinator {
	return s.coord
}

// HealthAggregator exposes the health aggregator for push-mode reporting.
func (s *Supervisor) HealthAggregator() *health.Aggregator {
	return s.health
}

// Run starts every registered service in dependency order, spawns one
// poller per service, and blocks until the context is canceled. Teardown
// always runs: services that started get a stop attempt even when startup
// or the run itself ends abnormally.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info().Int("services", s.reg.Len()).Msg("starting supervisor")

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), s.teardownBudget())
		defer cancel()
		result := s.coord.StopAll(stopCtx)
		for name, outcome := range result.Outcomes {
			if outcome.Kind == lifecycle.OutcomeStopFailed || outcome.Kind == lifecycle.OutcomeStopTimedOut {
				s.logger.Error().Str("service", name).Str("cause", outcome.Cause).Msg("service did not stop cleanly")
			}
		}
		s.logger.Info().Msg("supervisor stopped")
	}()

	startResult := s.coord.StartAll(ctx)
	raised := s.tracker.ObserveLifecycle(startResult)
	for _, a := range raised {
		s.telem.IncAlertsTotal(a.Service, string(a.Severity))
	}
	if len(raised) > 0 && s.notifier != nil {
		if err := s.notifier.Notify(ctx, raised); err != nil {
			s.logger.Error().Err(err).Msg("startup alert notification failed")
		}
	}
	if startResult.Err != nil {
		return startResult.Err
	}
	if startResult.Cancelled {
		return context.Canceled
	}

	s.updateStateGauges()

	// Spawn one poller per service
	var wg sync.WaitGroup
	for _, name := range s.reg.Names() {
		wg.Add(1)
		go s.spawnPoller(ctx, &wg, name)
	}

	wg.Wait()
	s.logger.Info().Msg("all pollers stopped")

	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, err := range s.pollerErrors {
		if err != nil {
			s.logger.Error().Err(err).Str("service", name).Msg("poller error")
		}
	}

	return nil
}

// spawnPoller creates and runs a single Poller for the named service.
func (s *Supervisor) spawnPoller(ctx context.Context, wg *sync.WaitGroup, name string) {
	defer wg.Done()

	serviceLogger := s.logger.With().Str("service", name).Logger()

	p := poller.New(
		serviceLogger,
		name,
		s.cfg.PollInterval,
		s.reg,
		s.coord,
		s.health,
		s.metrics,
		poller.WithAlertTracker(s.tracker),
		poller.WithNotifier(s.notifier),
		poller.WithTelemetry(s.telem),
		poller.WithHealthcheckTracker(s.check),
	)

	s.mu.Lock()
	s.pollers[name] = p
	s.mu.Unlock()

	serviceLogger.Info().Msg("poller started")

	if err := p.Run(ctx); err != nil {
		serviceLogger.Error().Err(err).Msg("poller exited with error")
		s.recordPollerError(name, err)
	} else {
		serviceLogger.Info().Msg("poller exited cleanly")
	}
}

func (s *Supervisor) recordPollerError(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollerErrors[name] = err
}

// ComprehensiveHealth returns the composite verdict plus the per-service
// report map. The staleness pass runs here, so stale services both degrade
// the verdict and raise alerts.
func (s *Supervisor) ComprehensiveHealth() health.Verdict {
	verdict := s.health.Aggregate(time.Now().UTC())
	s.observeVerdict(verdict)
	return verdict
}

// AllMetrics returns the latest metric snapshot per service.
func (s *Supervisor) AllMetrics() metrics.AllSnapshot {
	return s.metrics.SnapshotAll()
}

// ServiceStatus returns the lifecycle state of every registered service.
func (s *Supervisor) ServiceStatus() map[string]service.State {
	states := s.coord.States()
	s.updateStateGauges()
	return states
}

// PerformanceSummary returns the derived metric summary over the window.
func (s *Supervisor) PerformanceSummary(window time.Duration) map[string]map[string]metrics.KeySummary {
	return s.metrics.Summary(window, time.Now().UTC())
}

// MetricHistory returns the trailing snapshots for one service.
func (s *Supervisor) MetricHistory(name string, limit int) ([]service.MetricSnapshot, error) {
	return s.metrics.History(name, limit)
}

// ActiveAlerts returns open alerts, most severe first. A staleness pass
// runs first so alerts for silently stale services surface without waiting
// for a poll cycle.
func (s *Supervisor) ActiveAlerts() []alert.Alert {
	s.observeVerdict(s.health.Aggregate(time.Now().UTC()))
	return s.tracker.Active()
}

// RestartService stops and restarts one service.
func (s *Supervisor) RestartService(ctx context.Context, name string) error {
	err := s.coord.Restart(ctx, name)
	s.updateStateGauges()
	return err
}

func (s *Supervisor) observeVerdict(verdict health.Verdict) {
	raised, _ := s.tracker.ObserveVerdict(verdict)
	for _, a := range raised {
		s.telem.IncAlertsTotal(a.Service, string(a.Severity))
	}
	s.telem.SetCompositeHealth(service.Severity(verdict.Composite))
}

func (s *Supervisor) updateStateGauges() {
	counts := make(map[service.State]int)
	for _, state := range s.coord.States() {
		counts[state]++
	}
	for _, state := range []service.State{
		service.StateUninitialized,
		service.StateStarting,
		service.StateRunning,
		service.StateDegraded,
		service.StateStopping,
		service.StateStopped,
		service.StateFailed,
	} {
		s.telem.SetServicesTotal(string(state), counts[state])
	}
}

func (s *Supervisor) teardownBudget() time.Duration {
	// Worst case every service times out; bound total teardown by that.
	budget := time.Duration(s.reg.Len())*s.cfg.StopTimeout + 5*time.Second
	if budget < 10*time.Second {
		budget = 10 * time.Second
	}
	return budget
}
