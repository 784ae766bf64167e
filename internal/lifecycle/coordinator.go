package lifecycle

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

// Coordinator drives startup and shutdown sequencing over the registry.
// It owns every service's lifecycle state; nothing else mutates it.
type Coordinator struct {
	logger       zerolog.Logger
	reg          *registry.Registry
	startTimeout time.Duration
	stopTimeout  time.Duration

	seqMu sync.Mutex // serializes StartAll/StopAll/Restart

	mu         sync.RWMutex
	states     map[string]service.State
	startedAt  map[string]time.Time
	startOrder []string // successful start order, for reverse stop
}

// New constructs a Coordinator for the given registry.
func New(logger zerolog.Logger, reg *registry.Registry, startTimeout, stopTimeout time.Duration) *Coordinator {
	return &Coordinator{
		logger:       logger,
		reg:          reg,
		startTimeout: startTimeout,
		stopTimeout:  stopTimeout,
		states:       make(map[string]service.State),
		startedAt:    make(map[string]time.Time),
	}
}

// StateOf returns the current lifecycle state for a service.
func (c *Coordinator) StateOf(name string) (service.State, error) {
	if _, ok := c.reg.Lookup(name); !ok {
		return "", fmt.Errorf("%w: %s", service.ErrUnknownService, name)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.states[name]
	if !ok {
		return service.StateUninitialized, nil
	}
	return state, nil
}

// States returns the lifecycle state of every registered service.
func (c *Coordinator) States() map[string]service.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make(map[string]service.State)
	for _, name := range c.reg.Names() {
		state, ok := c.states[name]
		if !ok {
			state = service.StateUninitialized
		}
		result[name] = state
	}
	return result
}

// StartedAt returns when a service reached Running, if it did.
func (c *Coordinator) StartedAt(name string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	at, ok := c.startedAt[name]
	return at, ok
}

// ObserveHealth flips a Running service to Degraded when its health check
// reports trouble, and back once it recovers. Other states are untouched.
func (c *Coordinator) ObserveHealth(name string, status service.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.states[name] {
	case service.StateRunning:
		if status != service.StatusHealthy {
			c.states[name] = service.StateDegraded
		}
	case service.StateDegraded:
		if status == service.StatusHealthy {
			c.states[name] = service.StateRunning
		}
	}
}

// StartAll starts every registered service in dependency order. A Required
// failure aborts the sequence; Optional failures cascade-skip dependents
// and let the rest continue. Context cancellation stops issuing new
// transitions and marks the result Cancelled.
func (c *Coordinator) StartAll(ctx context.Context) SequenceResult {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()

	order, err := c.reg.StartOrder()
	if err != nil {
		result := newSequenceResult(nil)
		result.Err = err
		return result
	}

	result := newSequenceResult(order)
	failed := make(map[string]struct{})

	for i, name := range order {
		if ctx.Err() != nil {
			result.Cancelled = true
			for _, remaining := range order[i:] {
				result.record(remaining, OutcomeNotAttempted, "sequence cancelled")
			}
			c.logger.Warn().Int("remaining", len(order)-i).Msg("startup sequence cancelled")
			return result
		}

		entry, _ := c.reg.Lookup(name)

		if unmet := c.unmetDependency(entry.Descriptor, failed); unmet != "" {
			c.setState(name, service.StateFailed)
			failed[name] = struct{}{}
			result.record(name, OutcomeSkipped, fmt.Sprintf("dependency unmet: %s", unmet))
			c.logger.Warn().
				Str("service", name).
				Str("dependency", unmet).
				Msg("skipping service, dependency unmet")
			continue
		}

		if err := c.startOne(ctx, name, entry); err != nil {
			if errors.Is(err, context.Canceled) {
				result.Cancelled = true
				result.record(name, OutcomeNotAttempted, "sequence cancelled")
				for _, remaining := range order[i+1:] {
					result.record(remaining, OutcomeNotAttempted, "sequence cancelled")
				}
				return result
			}
			failed[name] = struct{}{}
			kind := OutcomeFailed
			if errors.Is(err, context.DeadlineExceeded) {
				kind = OutcomeTimedOut
			}
			result.record(name, kind, err.Error())

			if entry.Descriptor.Criticality == service.Required {
				skipped := append([]string(nil), order[i+1:]...)
				for _, remaining := range skipped {
					c.setState(remaining, service.StateStopped)
					result.record(remaining, OutcomeNotAttempted, fmt.Sprintf("aborted after %s failed", name))
				}
				result.Err = &service.StartupError{Service: name, Cause: err, Skipped: skipped}
				c.logger.Error().
					Err(err).
					Str("service", name).
					Int("skipped", len(skipped)).
					Msg("required service failed, aborting startup")
				return result
			}

			c.logger.Warn().
				Err(err).
				Str("service", name).
				Msg("optional service failed, continuing")
			continue
		}

		result.record(name, OutcomeStarted, "")
	}

	return result
}

// StopAll stops services in reverse of the successful start order. Every
// started service gets a stop attempt; failures and timeouts are recorded
// in the result, never propagated mid-sequence.
func (c *Coordinator) StopAll(ctx context.Context) SequenceResult {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	return c.stopAllLocked(ctx)
}

func (c *Coordinator) stopAllLocked(ctx context.Context) SequenceResult {
	c.mu.RLock()
	started := append([]string(nil), c.startOrder...)
	c.mu.RUnlock()

	order := make([]string, 0, len(started))
	for i := len(started) - 1; i >= 0; i-- {
		order = append(order, started[i])
	}

	result := newSequenceResult(order)
	for i, name := range order {
		if ctx.Err() != nil {
			result.Cancelled = true
			for _, remaining := range order[i:] {
				result.record(remaining, OutcomeNotAttempted, "sequence cancelled")
			}
			return result
		}
		c.stopOne(ctx, name, &result)
	}

	c.mu.Lock()
	c.startOrder = nil
	c.mu.Unlock()

	return result
}

// Restart stops and restarts a single service. It refuses while another
// sequence is in flight or the service is mid-transition, and requires the
// service's dependencies to be Running before starting it again.
func (c *Coordinator) Restart(ctx context.Context, name string) error {
	entry, ok := c.reg.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", service.ErrUnknownService, name)
	}

	if !c.seqMu.TryLock() {
		return fmt.Errorf("%w: a lifecycle sequence is in flight", service.ErrInvalidState)
	}
	defer c.seqMu.Unlock()

	c.mu.RLock()
	state := c.states[name]
	c.mu.RUnlock()

	switch state {
	case service.StateStarting, service.StateStopping:
		return fmt.Errorf("%w: %s is %s", service.ErrInvalidState, name, state)
	}

	for _, dep := range entry.Descriptor.DependsOn {
		c.mu.RLock()
		depState := c.states[dep]
		c.mu.RUnlock()
		if depState != service.StateRunning && depState != service.StateDegraded {
			return &service.StartupError{
				Service: name,
				Cause:   fmt.Errorf("dependency %s is %s, not running", dep, depState),
			}
		}
	}

	if state == service.StateRunning || state == service.StateDegraded {
		result := newSequenceResult([]string{name})
		c.stopOne(ctx, name, &result)
	}

	if err := c.startOne(ctx, name, entry); err != nil {
		return &service.StartupError{Service: name, Cause: err}
	}
	return nil
}

func (c *Coordinator) startOne(ctx context.Context, name string, entry registry.Entry) error {
	c.setState(name, service.StateStarting)
	c.logger.Info().Str("service", name).Msg("starting service")

	err := c.invoke(ctx, c.startTimeout, entry.Service.Start)
	if err != nil {
		c.setState(name, service.StateFailed)
		return err
	}

	c.mu.Lock()
	c.states[name] = service.StateRunning
	c.startedAt[name] = time.Now().UTC()
	// Restart must not duplicate the entry; stop order stays stable.
	present := false
	for _, existing := range c.startOrder {
		if existing == name {
			present = true
			break
		}
	}
	if !present {
		c.startOrder = append(c.startOrder, name)
	}
	c.mu.Unlock()

	c.logger.Info().Str("service", name).Msg("service running")
	return nil
}

func (c *Coordinator) stopOne(ctx context.Context, name string, result *SequenceResult) {
	entry, ok := c.reg.Lookup(name)
	if !ok {
		return
	}

	c.mu.RLock()
	state := c.states[name]
	c.mu.RUnlock()
	if state != service.StateRunning && state != service.StateDegraded {
		result.record(name, OutcomeNotAttempted, fmt.Sprintf("not running (%s)", state))
		return
	}

	c.setState(name, service.StateStopping)
	c.logger.Info().Str("service", name).Msg("stopping service")

	err := c.invoke(ctx, c.stopTimeout, entry.Service.Stop)
	if err != nil {
		c.setState(name, service.StateFailed)
		kind := OutcomeStopFailed
		if errors.Is(err, context.DeadlineExceeded) {
			kind = OutcomeStopTimedOut
		}
		result.record(name, kind, err.Error())
		c.logger.Error().Err(err).Str("service", name).Msg("service stop failed")
		return
	}

	c.setState(name, service.StateStopped)
	c.mu.Lock()
	delete(c.startedAt, name)
	c.mu.Unlock()
	result.record(name, OutcomeStopped, "")
	c.logger.Info().Str("service", name).Msg("service stopped")
}

// invoke runs fn under the given timeout in its own goroutine so a service
// that ignores its context cannot block the sequence past the deadline.
func (c *Coordinator) invoke(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		return callCtx.Err()
	}
}

func (c *Coordinator) setState(name string, state service.State) {
	c.mu.Lock()
	c.states[name] = state
	c.mu.Unlock()
}

func (c *Coordinator) unmetDependency(desc service.Descriptor, failed map[string]struct{}) string {
	for _, dep := range desc.DependsOn {
		if _, ok := failed[dep]; ok {
			return dep
		}
		c.mu.RLock()
		state := c.states[dep]
		c.mu.RUnlock()
		if state != service.StateRunning && state != service.StateDegraded {
			return dep
		}
	}
	return ""
}
