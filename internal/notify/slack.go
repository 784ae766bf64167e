package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nholik/service-sentinel/internal/alert"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

const (
	slackMaxBlocks = 50
	// slackReservedBlocks accounts for header block + context block in each message
	slackReservedBlocks = 2
	slackMaxAlerts      = slackMaxBlocks - slackReservedBlocks
)

// SlackNotifier posts alert batches to a Slack incoming webhook.
type SlackNotifier struct {
	logger     zerolog.Logger
	webhookURL string
	timing     timingConfig
	poster     *httpPoster
}

// SlackOption customizes SlackNotifier behavior.
type SlackOption func(*SlackNotifier)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *SlackNotifier) {
		s.timing.rateInterval = rateInterval
		s.timing.rateBurst = rateBurst
		s.timing.backoffInitial = backoffInitial
		s.timing.backoffMax = backoffMax
		s.timing.backoffMaxElapsed = backoffMaxElapsed
	}
}

// NewSlackNotifier creates a Slack notifier or a noop notifier when the webhook is empty.
func NewSlackNotifier(logger zerolog.Logger, webhookURL string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; notifications disabled")
	}

	notifier := &SlackNotifier{
		logger:     logger,
		webhookURL: webhookURL,
		timing:     defaultTiming,
	}

	for _, opt := range opts {
		opt(notifier)
	}

	notifier.poster = newHTTPPoster(logger, "slack", webhookURL, notifier.timing)

	return notifier
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, alerts []alert.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	if err := n.poster.waitForRateLimit(ctx); err != nil {
		return err
	}

	messages := buildSlackMessages(alerts)
	for _, message := range messages {
		payload, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("marshal slack payload: %w", err)
		}
		if err := n.poster.postWithRetry(ctx, payload); err != nil {
			return err
		}
	}

	n.logger.Debug().
		Int("alerts", len(alerts)).
		Int("messages", len(messages)).
		Msg("slack notification sent")

	return nil
}

func buildSlackMessages(alerts []alert.Alert) []slack.WebhookMessage {
	if len(alerts) == 0 {
		return nil
	}

	total := len(alerts)
	chunkTotal := (total + slackMaxAlerts - 1) / slackMaxAlerts
	messages := make([]slack.WebhookMessage, 0, chunkTotal)

	for i := 0; i < total; i += slackMaxAlerts {
		end := i + slackMaxAlerts
		if end > total {
			end = total
		}
		partIndex := (i / slackMaxAlerts) + 1
		messages = append(messages, buildSlackMessage(alerts[i:end], total, partIndex, chunkTotal))
	}
	return messages
}

func buildSlackMessage(alerts []alert.Alert, total int, partIndex int, partTotal int) slack.WebhookMessage {
	summary := fmt.Sprintf("Supervisor: %d alert update(s)", total)
	if partTotal > 1 {
		summary = fmt.Sprintf("%s (part %d/%d)", summary, partIndex, partTotal)
	}
	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", summary, false, false))
	contextElements := []slack.MixedElement{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Open: *%d*, resolved: *%d*", countOpen(alerts), len(alerts)-countOpen(alerts)), false, false),
	}
	if partTotal > 1 {
		contextElements = append(contextElements, slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Batch: %d/%d", partIndex, partTotal), false, false))
	}
	context := slack.NewContextBlock("", contextElements...)

	blocks := []slack.Block{header, context}
	for _, a := range alerts {
		blocks = append(blocks, buildAlertBlock(a))
	}

	blockSet := slack.Blocks{BlockSet: blocks}
	return slack.WebhookMessage{
		Text:   summary,
		Blocks: &blockSet,
	}
}

func buildAlertBlock(a alert.Alert) slack.Block {
	label := severityEmoji(a.Severity) + " raised"
	if a.ClearedAt != nil {
		label = ":white_check_mark: resolved"
	}
	title := fmt.Sprintf("*%s*: `%s` %s", a.Service, a.Cause, label)
	text := slack.NewTextBlockObject("mrkdwn", title, false, false)

	fields := make([]*slack.TextBlockObject, 0, 3)
	fields = append(fields, slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Severity:*\n%s", a.Severity), false, false))
	if a.Message != "" {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", "*Detail:*\n"+a.Message, false, false))
	}
	fields = append(fields, slack.NewTextBlockObject("mrkdwn", "*Raised:*\n"+a.RaisedAt.Format(time.RFC3339), false, false))

	return slack.NewSectionBlock(text, fields, nil)
}

func severityEmoji(severity alert.Severity) string {
	switch severity {
	case alert.SeverityCritical:
		return ":rotating_light:"
	case alert.SeverityWarning:
		return ":warning:"
	default:
		return ":information_source:"
	}
}

func countOpen(alerts []alert.Alert) int {
	open := 0
	for _, a := range alerts {
		if a.Open() {
			open++
		}
	}
	return open
}
