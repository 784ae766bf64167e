package healthcheck

import (
	"sync"
	"time"
)

// Snapshot describes the latest poll cycle timing details.
type Snapshot struct {
	LastPollTime   *time.Time `json:"last_poll_time"`
	PollDurationMS int64      `json:"poll_duration_ms"`
	ServicesPolled int        `json:"services_polled"`
}

// Tracker records poll cycle timing for the supervisor's own health endpoints.
type Tracker struct {
	mu             sync.RWMutex
	lastPoll       time.Time
	pollDuration   time.Duration
	servicesPolled int
	ready          bool
}

// NewTracker constructs a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordPoll updates poll timing and readiness.
func (t *Tracker) RecordPoll(duration time.Duration, servicesPolled int) {
	if t == nil {
		return
	}
	now := time.Now().UTC()
	t.mu.Lock()
	t.lastPoll = now
	t.pollDuration = duration
	t.servicesPolled = servicesPolled
	t.ready = true
	t.mu.Unlock()
}

// Snapshot returns the current tracker snapshot.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var last *time.Time
	if !t.lastPoll.IsZero() {
		value := t.lastPoll
		last = &value
	}
	return Snapshot{
		LastPollTime:   last,
		PollDurationMS: int64(t.pollDuration / time.Millisecond),
		ServicesPolled: t.servicesPolled,
	}
}

// Ready reports whether at least one successful poll cycle has completed.
func (t *Tracker) Ready() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready
}

// Healthy reports whether the last poll completed within 2x the poll interval.
func (t *Tracker) Healthy(now time.Time, pollInterval time.Duration) bool {
	if t == nil {
		return false
	}
	if pollInterval <= 0 {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastPoll.IsZero() {
		return false
	}
	return now.Sub(t.lastPoll) <= 2*pollInterval
}
