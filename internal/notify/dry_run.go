package notify

import (
	"context"

	"github.com/nholik/service-sentinel/internal/alert"
	"github.com/rs/zerolog"
)

// DryRunNotifier logs alerts without sending notifications.
type DryRunNotifier struct {
	logger zerolog.Logger
	inner  Notifier
}

// NewDryRunNotifier returns a notifier that suppresses delivery and logs instead.
func NewDryRunNotifier(logger zerolog.Logger, inner Notifier) *DryRunNotifier {
	return &DryRunNotifier{logger: logger, inner: inner}
}

// Notify implements Notifier.
func (n *DryRunNotifier) Notify(_ context.Context, alerts []alert.Alert) error {
	for _, a := range alerts {
		event := n.logger.Info().
			Str("service", a.Service).
			Str("severity", string(a.Severity)).
			Str("cause", a.Cause).
			Str("alert_id", a.ID)
		if a.ClearedAt != nil {
			event = event.Time("cleared_at", *a.ClearedAt)
		}
		event.Msg("[DRY-RUN] Would notify")
	}
	return nil
}
