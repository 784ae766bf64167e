package alert

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nholik/service-sentinel/internal/health"
	"github.com/nholik/service-sentinel/internal/lifecycle"
	"github.com/nholik/service-sentinel/internal/service"
	"github.com/nholik/service-sentinel/internal/transition"
	"github.com/rs/zerolog"
)

// Severity ranks alerts; higher is worse.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Alert causes. One open alert exists per (service, cause) at a time.
const (
	CauseHealthDegraded  = "health degraded"
	CauseHealthUnhealthy = "health unhealthy"
	CauseStaleReport     = "stale report"
	CauseStartupFailed   = "startup failed"
	CauseDependencyUnmet = "dependency unmet"
)

// Alert records one derived condition. Once raised it is only ever
// mutated by setting ClearedAt.
type Alert struct {
	ID        string     `json:"id"`
	Service   string     `json:"service"`
	Severity  Severity   `json:"severity"`
	Cause     string     `json:"cause"`
	Message   string     `json:"message,omitempty"`
	RaisedAt  time.Time  `json:"raised_at"`
	ClearedAt *time.Time `json:"cleared_at,omitempty"`
}

// Open reports whether the alert has not been cleared.
func (a Alert) Open() bool {
	return a.ClearedAt == nil
}

// Tracker derives alerts from health transitions and lifecycle failures.
// Raising is internal-only and idempotent per (service, cause); cleared
// alerts are purged lazily after the retention window.
type Tracker struct {
	logger    zerolog.Logger
	retention time.Duration
	now       func() time.Time

	mu     sync.Mutex
	alerts []*Alert
}

// NewTracker constructs a Tracker with the given retention window for
// cleared alerts.
func NewTracker(logger zerolog.Logger, retention time.Duration) *Tracker {
	return &Tracker{
		logger:    logger,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ObserveHealth consumes health transitions: trouble raises, recovery
// clears. Returns the newly raised and newly cleared alerts so the caller
// can forward them to notifiers.
func (t *Tracker) ObserveHealth(transitions []transition.Transition) (raised, cleared []Alert) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, change := range transitions {
		if change.Recovered() {
			cleared = append(cleared, t.clearLocked(change.Service, CauseHealthDegraded, CauseHealthUnhealthy, CauseStaleReport)...)
			continue
		}

		switch change.Current {
		case service.StatusDegraded:
			// A degrade also clears any outstanding unhealthy alert.
			cleared = append(cleared, t.clearLocked(change.Service, CauseHealthUnhealthy)...)
			if alert := t.raiseLocked(change.Service, SeverityWarning, CauseHealthDegraded, change.Message); alert != nil {
				raised = append(raised, *alert)
			}
		case service.StatusUnhealthy:
			cause := CauseHealthUnhealthy
			if change.Message == health.StaleMessage {
				cause = CauseStaleReport
			}
			if alert := t.raiseLocked(change.Service, SeverityCritical, cause, change.Message); alert != nil {
				raised = append(raised, *alert)
			}
		}
	}
	return raised, cleared
}

// ObserveVerdict raises stale-report alerts for services whose effective
// report was synthesized by the staleness policy, and clears them once the
// report is fresh again. Called opportunistically from query paths.
func (t *Tracker) ObserveVerdict(verdict health.Verdict) (raised, cleared []Alert) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for name, report := range verdict.Services {
		if report.Status == service.StatusUnhealthy && report.Message == health.StaleMessage {
			if alert := t.raiseLocked(name, SeverityCritical, CauseStaleReport, report.Message); alert != nil {
				raised = append(raised, *alert)
			}
			continue
		}
		cleared = append(cleared, t.clearLocked(name, CauseStaleReport)...)
	}
	return raised, cleared
}

// ObserveLifecycle consumes a sequence result: startup failures raise
// Critical alerts, clean starts clear lifecycle-originated ones.
func (t *Tracker) ObserveLifecycle(result lifecycle.SequenceResult) (raised []Alert) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for name, outcome := range result.Outcomes {
		switch outcome.Kind {
		case lifecycle.OutcomeFailed, lifecycle.OutcomeTimedOut:
			if alert := t.raiseLocked(name, SeverityCritical, CauseStartupFailed, outcome.Cause); alert != nil {
				raised = append(raised, *alert)
			}
		case lifecycle.OutcomeSkipped:
			if alert := t.raiseLocked(name, SeverityCritical, CauseDependencyUnmet, outcome.Cause); alert != nil {
				raised = append(raised, *alert)
			}
		case lifecycle.OutcomeStarted:
			t.clearLocked(name, CauseStartupFailed, CauseDependencyUnmet)
		}
	}
	return raised
}

// Active returns open alerts, most severe first, ties broken by most
// recent RaisedAt. Cleared alerts past retention are purged on the way.
func (t *Tracker) Active() []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.purgeLocked()

	active := make([]Alert, 0, len(t.alerts))
	for _, alert := range t.alerts {
		if alert.Open() {
			active = append(active, *alert)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		ri, rj := severityRank(active[i].Severity), severityRank(active[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return active[i].RaisedAt.After(active[j].RaisedAt)
	})
	return active
}

// All returns every retained alert, open and cleared, for diagnostics.
func (t *Tracker) All() []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.purgeLocked()
	result := make([]Alert, 0, len(t.alerts))
	for _, alert := range t.alerts {
		result = append(result, *alert)
	}
	return result
}

// raiseLocked opens an alert unless one with the same (service, cause) is
// already open, in which case it is a no-op.
func (t *Tracker) raiseLocked(svc string, severity Severity, cause, message string) *Alert {
	for _, existing := range t.alerts {
		if existing.Open() && existing.Service == svc && existing.Cause == cause {
			return nil
		}
	}
	alert := &Alert{
		ID:       uuid.NewString(),
		Service:  svc,
		Severity: severity,
		Cause:    cause,
		Message:  message,
		RaisedAt: t.now(),
	}
	t.alerts = append(t.alerts, alert)
	t.logger.Warn().
		Str("service", svc).
		Str("severity", string(severity)).
		Str("cause", cause).
		Str("alert_id", alert.ID).
		Msg("alert raised")
	return alert
}

func (t *Tracker) clearLocked(svc string, causes ...string) []Alert {
	var cleared []Alert
	for _, alert := range t.alerts {
		if !alert.Open() || alert.Service != svc {
			continue
		}
		for _, cause := range causes {
			if alert.Cause == cause {
				at := t.now()
				alert.ClearedAt = &at
				cleared = append(cleared, *alert)
				t.logger.Info().
					Str("service", svc).
					Str("cause", cause).
					Str("alert_id", alert.ID).
					Msg("alert cleared")
				break
			}
		}
	}
	return cleared
}

func (t *Tracker) purgeLocked() {
	if t.retention <= 0 {
		return
	}
	cutoff := t.now().Add(-t.retention)
	kept := t.alerts[:0]
	for _, alert := range t.alerts {
		if alert.ClearedAt != nil && alert.ClearedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, alert)
	}
	t.alerts = kept
}
