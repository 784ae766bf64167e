package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nholik/service-sentinel/internal/registry"
	"github.com/nholik/service-sentinel/internal/service"
	"github.com/rs/zerolog"
)

// Verdict is the merged health view across every registered service.
type Verdict struct {
	Composite service.Status                   `json:"composite"`
	Services  map[string]service.HealthReport `json:"services"`
}

// Aggregator retains the latest health report per service and merges them
// into a composite verdict. Reports older than maxAge count as Unhealthy
// in the verdict while the raw report stays retrievable via Latest.
type Aggregator struct {
	logger       zerolog.Logger
	reg          *registry.Registry
	maxAge       time.Duration
	checkTimeout time.Duration

	mu     sync.RWMutex
	latest map[string]service.HealthReport
}

// NewAggregator constructs a health aggregator over the registry.
func NewAggregator(logger zerolog.Logger, reg *registry.Registry, maxAge, checkTimeout time.Duration) *Aggregator {
	return &Aggregator{
		logger:       logger,
		reg:          reg,
		maxAge:       maxAge,
		checkTimeout: checkTimeout,
		latest:       make(map[string]service.HealthReport),
	}
}

// Report stores a pushed health report, overwriting the prior snapshot.
func (a *Aggregator) Report(report service.HealthReport) error {
	if _, ok := a.reg.Lookup(report.Service); !ok {
		return fmt.Errorf("%w: %s", service.ErrUnknownService, report.Service)
	}
	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now().UTC()
	}
	a.mu.Lock()
	a.latest[report.Service] = report
	a.mu.Unlock()
	return nil
}

// Poll invokes the service's health check under the configured timeout.
// A timeout or error is stored as a synthetic Unhealthy report so a
// misbehaving service degrades the verdict instead of blocking it.
func (a *Aggregator) Poll(ctx context.Context, name string) (service.HealthReport, error) {
	entry, ok := a.reg.Lookup(name)
	if !ok {
		return service.HealthReport{}, fmt.Errorf("%w: %s", service.ErrUnknownService, name)
	}

	checkCtx, cancel := context.WithTimeout(ctx, a.checkTimeout)
	defer cancel()

	type checkResult struct {
		report service.HealthReport
		err    error
	}
	done := make(chan checkResult, 1)
	go func() {
		report, err := entry.Service.CheckHealth(checkCtx)
		done <- checkResult{report: report, err: err}
	}()

	var report service.HealthReport
	select {
	case result := <-done:
		if result.err != nil {
			report = syntheticReport(name, "health check errored: "+result.err.Error())
		} else {
			report = result.report
			report.Service = name
			if report.Timestamp.IsZero() {
				report.Timestamp = time.Now().UTC()
			}
		}
	case <-checkCtx.Done():
		if errors.Is(checkCtx.Err(), context.DeadlineExceeded) {
			report = syntheticReport(name, "health check timed out")
		} else {
			return service.HealthReport{}, checkCtx.Err()
		}
	}

	a.mu.Lock()
	a.latest[name] = report
	a.mu.Unlock()
	return report, nil
}

// Latest returns the last stored report for a service, stale or not.
func (a *Aggregator) Latest(name string) (service.HealthReport, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	report, ok := a.latest[name]
	return report, ok
}

// Snapshot returns a copy of every stored report.
func (a *Aggregator) Snapshot() map[string]service.HealthReport {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result := make(map[string]service.HealthReport, len(a.latest))
	for name, report := range a.latest {
		result[name] = report
	}
	return result
}

// Aggregate merges the per-service reports into a composite verdict:
// Healthy iff every service is Healthy, Unhealthy iff at least one
// Required service is Unhealthy, Degraded otherwise. An Unhealthy
// Optional service caps the composite at Degraded. Services that have
// never reported are skipped.
func (a *Aggregator) Aggregate(now time.Time) Verdict {
	descriptors := a.reg.Descriptors()

	a.mu.RLock()
	defer a.mu.RUnlock()

	verdict := Verdict{
		Composite: service.StatusHealthy,
		Services:  make(map[string]service.HealthReport, len(a.latest)),
	}

	for name, desc := range descriptors {
		report, ok := a.latest[name]
		if !ok {
			continue
		}
		report = a.effective(report, now)
		verdict.Services[name] = report

		switch report.Status {
		case service.StatusUnhealthy:
			if desc.Criticality == service.Required {
				verdict.Composite = service.StatusUnhealthy
			} else {
				verdict.Composite = service.Worse(verdict.Composite, service.StatusDegraded)
			}
		case service.StatusDegraded:
			verdict.Composite = service.Worse(verdict.Composite, service.StatusDegraded)
		}
	}

	return verdict
}

// effective applies the staleness policy to a stored report.
func (a *Aggregator) effective(report service.HealthReport, now time.Time) service.HealthReport {
	if a.maxAge <= 0 || now.Sub(report.Timestamp) <= a.maxAge {
		return report
	}
	stale := syntheticReport(report.Service, StaleMessage)
	stale.Details = map[string]string{
		"last_status":    string(report.Status),
		"last_report_at": report.Timestamp.Format(time.RFC3339),
	}
	return stale
}

// StaleMessage marks reports synthesized by the staleness policy.
const StaleMessage = "stale report"

func syntheticReport(name, message string) service.HealthReport {
	return service.HealthReport{
		Service:   name,
		Status:    service.StatusUnhealthy,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}
