package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nholik/service-sentinel/internal/alert"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

func fastSlackTiming() SlackOption {
	return WithSlackTiming(time.Millisecond, 10, time.Millisecond, 5*time.Millisecond, 100*time.Millisecond)
}

func makeAlerts(n int) []alert.Alert {
	alerts := make([]alert.Alert, 0, n)
	for i := 0; i < n; i++ {
		alerts = append(alerts, alert.Alert{
			ID:       fmt.Sprintf("a%d", i),
			Service:  fmt.Sprintf("svc-%d", i),
			Severity: alert.SeverityCritical,
			Cause:    alert.CauseHealthUnhealthy,
			RaisedAt: time.Now().UTC(),
		})
	}
	return alerts
}

func TestNewSlackNotifier_EmptyURLIsNoop(t *testing.T) {
	notifier := NewSlackNotifier(zerolog.Nop(), "")
	if _, ok := notifier.(*SlackNotifier); ok {
		t.Fatal("empty webhook should produce a noop notifier")
	}
	if err := notifier.Notify(context.Background(), makeAlerts(1)); err != nil {
		t.Fatalf("noop notify: %v", err)
	}
}

func TestSlackNotifier_PostsMessage(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(zerolog.Nop(), server.URL, fastSlackTiming())
	cleared := time.Now().UTC()
	alerts := []alert.Alert{
		{ID: "a1", Service: "database", Severity: alert.SeverityCritical, Cause: alert.CauseHealthUnhealthy, Message: "down", RaisedAt: time.Now().UTC()},
		{ID: "a2", Service: "cache", Severity: alert.SeverityWarning, Cause: alert.CauseHealthDegraded, RaisedAt: time.Now().UTC(), ClearedAt: &cleared},
	}
	if err := notifier.Notify(context.Background(), alerts); err != nil {
		t.Fatalf("notify: %v", err)
	}

	var message slack.WebhookMessage
	if err := json.Unmarshal(body, &message); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if !strings.Contains(message.Text, "2 alert update(s)") {
		t.Fatalf("summary should count alerts, got %q", message.Text)
	}
	// header + context + one section per alert
	if got := len(message.Blocks.BlockSet); got != 4 {
		t.Fatalf("expected 4 blocks, got %d", got)
	}
}

func TestBuildSlackMessages_ChunksLargeBatches(t *testing.T) {
	messages := buildSlackMessages(makeAlerts(slackMaxAlerts + 1))
	if len(messages) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(messages))
	}
	if got := len(messages[0].Blocks.BlockSet); got != slackMaxBlocks {
		t.Fatalf("first chunk should fill the block limit, got %d", got)
	}
	if !strings.Contains(messages[0].Text, "part 1/2") || !strings.Contains(messages[1].Text, "part 2/2") {
		t.Fatalf("chunked messages should be labeled, got %q / %q", messages[0].Text, messages[1].Text)
	}
}

func TestBuildSlackMessages_Empty(t *testing.T) {
	if messages := buildSlackMessages(nil); messages != nil {
		t.Fatalf("expected no messages for empty batch, got %d", len(messages))
	}
}

func TestSlackNotifier_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(zerolog.Nop(), server.URL, fastSlackTiming())
	if err := notifier.Notify(context.Background(), makeAlerts(1)); err != nil {
		t.Fatalf("notify should succeed after retry: %v", err)
	}
	if attempts.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts.Load())
	}
}
