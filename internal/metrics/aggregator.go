package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/nholik/service-sentinel/internal/registry"
	"github.com/nholik/service-sentinel/internal/service"
)

// AllSnapshot is the unified view of the latest snapshot per service.
// CollectedAt is the max timestamp across included snapshots.
type AllSnapshot struct {
	CollectedAt time.Time                         `json:"collected_at"`
	Services    map[string]service.MetricSnapshot `json:"services"`
}

// KeySummary aggregates one metric key over a time window.
type KeySummary struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Avg    float64 `json:"avg"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Latest float64 `json:"latest"`
}

// Aggregator retains a bounded per-service snapshot history. No
// cross-service arithmetic happens here; aggregation is structural and
// numeric combination is left to the consumer.
type Aggregator struct {
	reg      *registry.Registry
	capacity int

	mu      sync.RWMutex
	history map[string][]service.MetricSnapshot
}

// NewAggregator constructs a metrics aggregator with the given per-service
// history capacity.
func NewAggregator(reg *registry.Registry, capacity int) *Aggregator {
	if capacity < 1 {
		capacity = 1
	}
	return &Aggregator{
		reg:      reg,
		capacity: capacity,
		history:  make(map[string][]service.MetricSnapshot),
	}
}

// Record appends a snapshot to the service's history. When the history is
// full the oldest entry is evicted first; eviction is policy, not an error.
func (a *Aggregator) Record(snapshot service.MetricSnapshot) error {
	if _, ok := a.reg.Lookup(snapshot.Service); !ok {
		return fmt.Errorf("%w: %s", service.ErrUnknownService, snapshot.Service)
	}
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now().UTC()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entries := a.history[snapshot.Service]
	if len(entries) == a.capacity {
		copy(entries, entries[1:])
		entries = entries[:len(entries)-1]
	}
	a.history[snapshot.Service] = append(entries, snapshot)
	return nil
}

// SnapshotAll returns the latest snapshot per service.
func (a *Aggregator) SnapshotAll() AllSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := AllSnapshot{Services: make(map[string]service.MetricSnapshot, len(a.history))}
	for name, entries := range a.history {
		if len(entries) == 0 {
			continue
		}
		latest := entries[len(entries)-1]
		result.Services[name] = latest
		if latest.Timestamp.After(result.CollectedAt) {
			result.CollectedAt = latest.Timestamp
		}
	}
	return result
}

// History returns the last limit snapshots for a service in chronological
// order, or fewer if the history is shorter.
func (a *Aggregator) History(name string, limit int) ([]service.MetricSnapshot, error) {
	if _, ok := a.reg.Lookup(name); !ok {
		return nil, fmt.Errorf("%w: %s", service.ErrUnknownService, name)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	entries := a.history[name]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]service.MetricSnapshot(nil), entries...), nil
}

// Summary aggregates every metric key per service over the trailing window.
func (a *Aggregator) Summary(window time.Duration, now time.Time) map[string]map[string]KeySummary {
	cutoff := now.Add(-window)

	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make(map[string]map[string]KeySummary, len(a.history))
	for name, entries := range a.history {
		keys := make(map[string]KeySummary)
		for _, snapshot := range entries {
			if snapshot.Timestamp.Before(cutoff) {
				continue
			}
			for key, value := range snapshot.Values {
				summary, ok := keys[key]
				if !ok {
					summary = KeySummary{Min: value, Max: value}
				}
				summary.Count++
				summary.Sum += value
				if value < summary.Min {
					summary.Min = value
				}
				if value > summary.Max {
					summary.Max = value
				}
				summary.Latest = value
				keys[key] = summary
			}
		}
		for key, summary := range keys {
			summary.Avg = summary.Sum / float64(summary.Count)
			keys[key] = summary
		}
		if len(keys) > 0 {
			result[name] = keys
		}
	}
	return result
}
