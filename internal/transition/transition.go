package transition

import (
	"sort"
	"time"

	"github.com/nholik/service-sentinel/internal/service"
)

// Transition captures a health status change for one service.
type Transition struct {
	Service  string
	Previous service.Status
	Current  service.Status
	Message  string
	Details  map[string]string
	At       time.Time
}

// Recovered reports whether this transition returned the service to Healthy.
func (t Transition) Recovered() bool {
	return t.Current == service.StatusHealthy
}

// Detect compares a previous report map with the current one and emits a
// transition per changed service. On first observation (no previous map)
// only non-Healthy services are emitted. Output is sorted by service name
// for deterministic processing.
func Detect(prev, current map[string]service.HealthReport) []Transition {
	firstRun := len(prev) == 0

	transitions := make([]Transition, 0)
	for name, report := range current {
		prevReport, hadPrev := prev[name]

		if firstRun || !hadPrev {
			if report.Status == service.StatusHealthy {
				continue
			}
		} else if prevReport.Status == report.Status {
			continue
		}

		transitions = append(transitions, Transition{
			Service:  name,
			Previous: prevReport.Status,
			Current:  report.Status,
			Message:  report.Message,
			Details:  report.Details,
			At:       report.Timestamp,
		})
	}

	sort.Slice(transitions, func(i, j int) bool {
		return transitions[i].Service < transitions[j].Service
	})

	return transitions
}
