package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shortvideo/internal/config"
)

const userAgent = "shortvideo/1.0"

// Event identifies a notification kind.
type Event string

const (
	EventTaskReady  Event = "task_ready"
	EventStepFailed Event = "step_failed"
	EventTest       Event = "test"
)

// Payload carries event fields. Known keys: taskID, title, step, reason.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventTaskReady:  cfg.Notifications.TaskReady,
			EventStepFailed: cfg.Notifications.StepFailed,
			EventTest:       true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	taskID := payload.text("taskID")
	label := taskID
	if title := payload.text("title"); title != "" {
		label = fmt.Sprintf("%s (%s)", title, taskID)
	}
	switch event {
	case EventTaskReady:
		return message{
			title:    "Shortvideo - Pack Ready",
			body:     fmt.Sprintf("✅ Pack ready: %s", label),
			tags:     []string{"shortvideo", "pack", "ready"},
			priority: "high",
		}, true
	case EventStepFailed:
		reason := payload.text("reason")
		if reason == "" {
			reason = "unknown"
		}
		return message{
			title:    "Shortvideo - Step Failed",
			body:     fmt.Sprintf("❌ %s failed for %s: %s", payload.text("step"), label, reason),
			tags:     []string{"shortvideo", "error", payload.text("step")},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Shortvideo - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"shortvideo", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	tags := make([]string, 0, len(msg.tags))
	for _, tag := range msg.tags {
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
