package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// LogLevel maps a severity to the slog level failures are logged at.
func (s Severity) LogLevel() slog.Level {
	switch s {
	case SeverityLow:
		return slog.LevelInfo
	case SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

type Message struct {
	Severity Severity
	Title    string
	Text     string
	Fields   map[string]string
}

// Notifier delivers operator alerts. Implementations must not block the
// caller for long and never fail the publish path.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

type logNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &logNotifier{logger: logger}
}

func (n *logNotifier) Notify(ctx context.Context, msg Message) {
	attrs := []any{"severity", string(msg.Severity), "title", msg.Title}
	for k, v := range msg.Fields {
		attrs = append(attrs, k, v)
	}
	n.logger.Log(ctx, msg.Severity.LogLevel(), msg.Text, attrs...)
}

const (
	slackTimeout   = 10 * time.Second
	slackQueueSize = 64
)

// slackNotifier posts to an incoming webhook from a single background
// worker. Notify only enqueues, and drops the message when the queue is
// full.
type slackNotifier struct {
	webhookURL string
	client     *http.Client
	queue      chan slackPayload
}

func NewSlackNotifier(webhookURL string) Notifier {
	n := &slackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: slackTimeout},
		queue:      make(chan slackPayload, slackQueueSize),
	}
	go n.run()
	return n
}

type slackPayload struct {
	Text string `json:"text"`
}

func (n *slackNotifier) Notify(_ context.Context, msg Message) {
	text := fmt.Sprintf("[%s] %s\n%s", msg.Severity, msg.Title, msg.Text)
	for k, v := range msg.Fields {
		text += fmt.Sprintf("\n• %s: %s", k, v)
	}

	select {
	case n.queue <- slackPayload{Text: text}:
	default:
		slog.Warn("slack notification queue full, dropping message", "title", msg.Title)
	}
}

func (n *slackNotifier) run() {
	for payload := range n.queue {
		n.post(payload)
	}
}

func (n *slackNotifier) post(payload slackPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to encode slack payload", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), slackTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		slog.Error("failed to build slack request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Error("failed to deliver slack notification", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Error("slack webhook rejected notification", "status", resp.StatusCode)
	}
}

// Multi fans a message out to every notifier.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, msg)
		}
	}
}
