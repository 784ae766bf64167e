package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// HTTPProbe supervises an external HTTP endpoint as a managed service.
// Start performs an initial probe so a Required endpoint gates startup;
// health checks GET the endpoint under the caller's deadline.
type HTTPProbe struct {
	name   string
	url    string
	client *retryablehttp.Client

	mu                  sync.Mutex
	started             bool
	checksTotal         int
	consecutiveFailures int
	lastLatency         time.Duration
}

// NewHTTPProbe constructs a probe for the given endpoint.
func NewHTTPProbe(name, rawURL string, timeout time.Duration) (*HTTPProbe, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("probe %s: invalid url: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("probe %s: url must include scheme and host", name)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: timeout}

	return &HTTPProbe{
		name:   name,
		url:    rawURL,
		client: client,
	}, nil
}

// Start implements Service. The initial probe must succeed.
func (p *HTTPProbe) Start(ctx context.Context) error {
	if _, _, err := p.probe(ctx); err != nil {
		return fmt.Errorf("initial probe failed: %w", err)
	}
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	return nil
}

// Stop implements Service.
func (p *HTTPProbe) Stop(_ context.Context) error {
	p.mu.Lock()
	p.started = false
	p.mu.Unlock()
	return nil
}

// CheckHealth implements Service. 2xx is Healthy, other statuses are
// Degraded, transport failures are Unhealthy.
func (p *HTTPProbe) CheckHealth(ctx context.Context) (HealthReport, error) {
	statusCode, latency, err := p.probe(ctx)

	report := HealthReport{
		Service:   p.name,
		Timestamp: time.Now().UTC(),
		Details: map[string]string{
			"url":        p.url,
			"latency_ms": fmt.Sprintf("%d", latency.Milliseconds()),
		},
	}

	if err != nil {
		report.Status = StatusUnhealthy
		report.Message = err.Error()
		return report, nil
	}

	report.Details["status_code"] = fmt.Sprintf("%d", statusCode)
	switch {
	case statusCode >= 200 && statusCode < 300:
		report.Status = StatusHealthy
	default:
		report.Status = StatusDegraded
		report.Message = fmt.Sprintf("endpoint returned %d", statusCode)
	}
	return report, nil
}

// CollectMetrics implements Service.
func (p *HTTPProbe) CollectMetrics() MetricSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return MetricSnapshot{
		Service:   p.name,
		Timestamp: time.Now().UTC(),
		Values: map[string]float64{
			"probe_latency_ms":     float64(p.lastLatency.Milliseconds()),
			"checks_total":         float64(p.checksTotal),
			"consecutive_failures": float64(p.consecutiveFailures),
		},
	}
}

func (p *HTTPProbe) probe(ctx context.Context) (int, time.Duration, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("build probe request: %w", err)
	}

	started := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(started)

	p.mu.Lock()
	p.checksTotal++
	p.lastLatency = latency
	if err != nil {
		p.consecutiveFailures++
	} else {
		p.consecutiveFailures = 0
	}
	p.mu.Unlock()

	if err != nil {
		return 0, latency, fmt.Errorf("probe %s: %w", p.url, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, latency, nil
}
