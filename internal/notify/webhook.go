package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nholik/service-sentinel/internal/alert"
	"github.com/rs/zerolog"
)

// WebhookPayload is the JSON body sent to a generic webhook.
type WebhookPayload struct {
	Alerts      []alert.Alert `json:"alerts"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// WebhookNotifier sends alert batches to a generic JSON webhook.
type WebhookNotifier struct {
	logger zerolog.Logger
	poster *httpPoster
}

// WebhookOption customizes WebhookNotifier behavior.
type WebhookOption func(*WebhookNotifier)

// WithWebhookTiming overrides timing parameters (primarily for testing).
func WithWebhookTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) WebhookOption {
	return func(w *WebhookNotifier) {
		timing := w.poster.timing
		timing.rateInterval = rateInterval
		timing.rateBurst = rateBurst
		timing.backoffInitial = backoffInitial
		timing.backoffMax = backoffMax
		timing.backoffMaxElapsed = backoffMaxElapsed
		w.poster = newHTTPPoster(w.logger, "webhook", w.poster.targetURL, timing)
	}
}

// NewWebhookNotifier creates a webhook notifier, or nil when the URL is empty.
func NewWebhookNotifier(logger zerolog.Logger, webhookURL string, opts ...WebhookOption) *WebhookNotifier {
	if webhookURL == "" {
		return nil
	}
	notifier := &WebhookNotifier{
		logger: logger,
		poster: newHTTPPoster(logger, "webhook", webhookURL, defaultTiming),
	}
	for _, opt := range opts {
		opt(notifier)
	}
	return notifier
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, alerts []alert.Alert) error {
	if n == nil || len(alerts) == 0 {
		return nil
	}

	if err := n.poster.waitForRateLimit(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(WebhookPayload{
		Alerts:      alerts,
		GeneratedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	if err := n.poster.postWithRetry(ctx, payload); err != nil {
		return err
	}

	n.logger.Debug().
		Int("alerts", len(alerts)).
		Msg("webhook notification sent")

	return nil
}
