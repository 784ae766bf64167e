package poller

import (
	"context"
	"errors"
	"time"

	"github.com/nholik/service-sentinel/internal/alert"
	"github.com/nholik/service-sentinel/internal/health"
	"github.com/nholik/service-sentinel/internal/healthcheck"
	"github.com/nholik/service-sentinel/internal/lifecycle"
	"github.com/nholik/service-sentinel/internal/metrics"
	"github.com/nholik/service-sentinel/internal/notify"
	"github.com/nholik/service-sentinel/internal/registry"
	"github.com/nholik/service-sentinel/internal/service"
	"github.com/nholik/service-sentinel/internal/telemetry"
	"github.com/nholik/service-sentinel/internal/transition"
	"github.com/rs/zerolog"
)

// Ticker is the minimal interface needed for driving the poll loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

// Poller drives the monitor loop for one managed service: each cycle it
// polls health, collects metrics, and routes status transitions to the
// alert tracker and notifiers.
type Poller struct {
	logger        zerolog.Logger
	name          string
	interval      time.Duration
	tickerFactory func(time.Duration) Ticker
	runOnce       func(context.Context) error

	reg        *registry.Registry
	coord      *lifecycle.Coordinator
	healthAgg  *health.Aggregator
	metricsAgg *metrics.Aggregator
	tracker    *alert.Tracker
	notifier   notify.Notifier
	telem      *telemetry.Metrics
	check      *healthcheck.Tracker

	prevReport *service.HealthReport
}

// Option customizes poller behavior.
type Option func(*Poller)

// WithTickerFactory overrides how tickers are created.
func WithTickerFactory(factory func(time.Duration) Ticker) Option {
	return func(p *Poller) {
		p.tickerFactory = factory
	}
}

// WithRunOnce overrides the single-cycle execution step.
func WithRunOnce(runOnce func(context.Context) error) Option {
	return func(p *Poller) {
		p.runOnce = runOnce
	}
}

// WithAlertTracker routes detected transitions into the tracker.
func WithAlertTracker(tracker *alert.Tracker) Option {
	return func(p *Poller) {
		p.tracker = tracker
	}
}

// WithNotifier forwards raised and cleared alerts to the notifier.
func WithNotifier(notifier notify.Notifier) Option {
	return func(p *Poller) {
		p.notifier = notifier
	}
}

// WithTelemetry records cycle durations and check errors.
func WithTelemetry(telem *telemetry.Metrics) Option {
	return func(p *Poller) {
		p.telem = telem
	}
}

// WithHealthcheckTracker records cycles for the liveness endpoints.
func WithHealthcheckTracker(check *healthcheck.Tracker) Option {
	return func(p *Poller) {
		p.check = check
	}
}

// New constructs a Poller for one named service.
func New(logger zerolog.Logger, name string, interval time.Duration, reg *registry.Registry, coord *lifecycle.Coordinator, healthAgg *health.Aggregator, metricsAgg *metrics.Aggregator, opts ...Option) *Poller {
	p := &Poller{
		logger:     logger,
		name:       name,
		interval:   interval,
		reg:        reg,
		coord:      coord,
		healthAgg:  healthAgg,
		metricsAgg: metricsAgg,
		tickerFactory: func(d time.Duration) Ticker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
	}
	p.runOnce = p.defaultRunOnce

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run starts the poll loop and blocks until the context is canceled.
func (p *Poller) Run(ctx context.Context) error {
	if p.interval <= 0 {
		return errors.New("poll interval must be greater than zero")
	}

	// Run immediately on startup
	if err := p.RunOnce(ctx); err != nil {
		p.logger.Error().Err(err).Msg("initial poll cycle failed")
	}

	ticker := p.tickerFactory(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("poller stopped")
			return nil
		case <-ticker.C():
			if err := p.RunOnce(ctx); err != nil {
				p.logger.Error().Err(err).Msg("poll cycle failed")
			}
		}
	}
}

// RunOnce executes a single poll cycle.
func (p *Poller) RunOnce(ctx context.Context) error {
	return p.runOnce(ctx)
}

func (p *Poller) defaultRunOnce(ctx context.Context) error {
	state, err := p.coord.StateOf(p.name)
	if err != nil {
		return err
	}
	if state != service.StateRunning && state != service.StateDegraded {
		p.logger.Debug().Str("state", string(state)).Msg("service not running, skipping poll")
		return nil
	}

	started := time.Now()

	report, err := p.healthAgg.Poll(ctx, p.name)
	if err != nil {
		return err
	}
	if report.Status != service.StatusHealthy {
		p.telem.IncHealthCheckErrors()
	}

	p.coord.ObserveHealth(p.name, report.Status)

	entry, ok := p.reg.Lookup(p.name)
	if ok {
		snapshot := entry.Service.CollectMetrics()
		snapshot.Service = p.name
		if err := p.metricsAgg.Record(snapshot); err != nil {
			p.logger.Warn().Err(err).Msg("failed to record metrics")
		}
	}

	p.routeTransitions(ctx, report)
	p.prevReport = &report

	duration := time.Since(started)
	p.telem.ObservePollDuration(duration)
	p.telem.SetLastSuccessfulPollTimestamp(time.Now().UTC())
	p.check.RecordPoll(duration, 1)

	p.logger.Debug().
		Str("status", string(report.Status)).
		Dur("duration", duration).
		Msg("poll cycle complete")

	return nil
}

func (p *Poller) routeTransitions(ctx context.Context, report service.HealthReport) {
	prev := map[string]service.HealthReport{}
	if p.prevReport != nil {
		prev[p.name] = *p.prevReport
	}
	current := map[string]service.HealthReport{p.name: report}

	transitions := transition.Detect(prev, current)
	if len(transitions) == 0 {
		return
	}

	for _, change := range transitions {
		event := p.logger.Info()
		switch change.Current {
		case service.StatusUnhealthy:
			event = p.logger.Error()
		case service.StatusDegraded:
			event = p.logger.Warn()
		}
		event.
			Str("previous_status", string(change.Previous)).
			Str("current_status", string(change.Current)).
			Str("message", change.Message).
			Msg("health transition detected")
	}

	if p.tracker == nil {
		return
	}
	raised, cleared := p.tracker.ObserveHealth(transitions)
	for _, a := range raised {
		p.telem.IncAlertsTotal(a.Service, string(a.Severity))
	}

	updates := append(raised, cleared...)
	if p.notifier == nil || len(updates) == 0 {
		return
	}
	if err := p.notifier.Notify(ctx, updates); err != nil {
		p.logger.Error().Err(err).Msg("alert notification failed")
	}
}
