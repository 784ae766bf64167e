package notify

import (
	"context"

	"github.com/nholik/service-sentinel/internal/alert"
)

// Notifier delivers alert batches to external systems. A batch may mix
// newly raised and newly cleared alerts; cleared ones carry ClearedAt.
type Notifier interface {
	Notify(ctx context.Context, alerts []alert.Alert) error
}
