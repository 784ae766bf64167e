package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/nholik/service-sentinel/internal/service"
)

type stubService struct{}

func (stubService) Start(context.Context) error { return nil }
func (stubService) Stop(context.Context) error  { return nil }
func (stubService) CheckHealth(context.Context) (service.HealthReport, error) {
	return service.HealthReport{Status: service.StatusHealthy}, nil
}
func (stubService) CollectMetrics() service.MetricSnapshot {
	return service.MetricSnapshot{}
}

func register(t *testing.T, reg *Registry, name string, deps ...string) {
	t.Helper()
	err := reg.Register(service.Descriptor{Name: name, DependsOn: deps, Criticality: service.Required}, stubService{})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	reg := New()
	register(t, reg, "cache")

	err := reg.Register(service.Descriptor{Name: "cache"}, stubService{})
	if !errors.Is(err, service.ErrDuplicateService) {
		t.Fatalf("expected ErrDuplicateService, got %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("failed registration mutated the registry: %d entries", reg.Len())
	}
}

func TestRegister_SelfDependency(t *testing.T) {
	reg := New()
	err := reg.Register(service.Descriptor{Name: "loop", DependsOn: []string{"loop"}}, stubService{})
	if !errors.Is(err, service.ErrCyclicDependency) {
		t.Fatalf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestRegister_IndirectCycle(t *testing.T) {
	reg := New()
	register(t, reg, "a", "b")
	register(t, reg, "b", "c")

	// a→b→c plus c→a closes the loop
	err := reg.Register(service.Descriptor{Name: "c", DependsOn: []string{"a"}}, stubService{})
	if !errors.Is(err, service.ErrCyclicDependency) {
		t.Fatalf("expected ErrCyclicDependency, got %v", err)
	}
	if _, ok := reg.Lookup("c"); ok {
		t.Fatal("rejected registration should not be stored")
	}
}

func TestStartOrder_RespectsDependencies(t *testing.T) {
	reg := New()
	register(t, reg, "api", "database", "cache")
	register(t, reg, "database")
	register(t, reg, "cache", "database")
	register(t, reg, "worker", "api")

	order, err := reg.StartOrder()
	if err != nil {
		t.Fatalf("start order: %v", err)
	}

	position := map[string]int{}
	for i, name := range order {
		position[name] = i
	}
	if position["database"] > position["cache"] {
		t.Fatalf("database must start before cache: %v", order)
	}
	if position["cache"] > position["api"] || position["database"] > position["api"] {
		t.Fatalf("api must start after its dependencies: %v", order)
	}
	if position["api"] > position["worker"] {
		t.Fatalf("worker must start after api: %v", order)
	}
}

func TestStartOrder_StableTieBreak(t *testing.T) {
	reg := New()
	register(t, reg, "gamma")
	register(t, reg, "alpha")
	register(t, reg, "beta")

	order, err := reg.StartOrder()
	if err != nil {
		t.Fatalf("start order: %v", err)
	}

	want := []string{"gamma", "alpha", "beta"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("expected registration order %v, got %v", want, order)
		}
	}
}

func TestStartOrder_UnregisteredDependency(t *testing.T) {
	reg := New()
	register(t, reg, "api", "database")

	_, err := reg.StartOrder()
	if !errors.Is(err, service.ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}
}
