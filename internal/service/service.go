package service

import (
	"context"
	"time"
)

// Status represents the reported health of a managed service.
type Status string

const (
	StatusHealthy   Status = "HEALTHY"
	StatusDegraded  Status = "DEGRADED"
	StatusUnhealthy Status = "UNHEALTHY"
)

// Severity ranks statuses for composite verdicts; higher is worse.
func Severity(status Status) int {
	switch status {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// Worse returns the more severe of two statuses.
func Worse(current, next Status) Status {
	if Severity(next) > Severity(current) {
		return next
	}
	return current
}

// State represents the lifecycle state of a managed service.
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateStarting      State = "STARTING"
	StateRunning       State = "RUNNING"
	StateDegraded      State = "DEGRADED"
	StateStopping      State = "STOPPING"
	StateStopped       State = "STOPPED"
	StateFailed        State = "FAILED"
)

// Criticality controls whether a startup failure aborts the whole sequence.
type Criticality string

const (
	Required Criticality = "required"
	Optional Criticality = "optional"
)

// Descriptor identifies one managed service. Immutable after registration.
type Descriptor struct {
	Name        string
	DependsOn   []string
	Criticality Criticality
}

// HealthReport is a point-in-time health snapshot from a single service.
type HealthReport struct {
	Service   string            `json:"service"`
	Status    Status            `json:"status"`
	Message   string            `json:"message,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// MetricSnapshot is a point-in-time metric collection from a single service.
type MetricSnapshot struct {
	Service   string             `json:"service"`
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// Service is the capability contract a subsystem must implement to be
// registered with the supervisor. Start, Stop and CheckHealth are treated
// as potentially blocking; callers bound them with a context deadline.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	CheckHealth(ctx context.Context) (HealthReport, error)
	CollectMetrics() MetricSnapshot
}
