package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"comicshelf/internal/config"
)

const userAgent = "comicshelf/0.1.0"

var (
	// ErrPublish marks a failed delivery to a notification transport.
	ErrPublish = errors.New("notifications: publish failed")
	// ErrThrottled marks an event dropped by the ntfy rate limiter.
	ErrThrottled = errors.New("notifications: throttled")
)

// Event identifies a notification category.
type Event string

const (
	EventComicStateChanged Event = "comic_state_changed"
	EventPageStateChanged  Event = "page_state_changed"
	EventJobLaunched       Event = "job_launched"
	EventJobCompleted      Event = "job_completed"
	EventJobFailed         Event = "job_failed"
	EventTaskFailed        Event = "task_failed"
	EventError             Event = "error"
	EventTest              Event = "test"
)

// Payload carries event-specific fields.
type Payload map[string]any

// Service publishes events to a notification transport.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds the ntfy publisher when a topic is configured and a noop
// otherwise.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	svc := &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		stateChanges: cfg.Notifications.StateChanges,
		jobEvents:    cfg.Notifications.JobEvents,
	}
	if cfg.Notifications.MinInterval > 0 {
		svc.limiter = rate.NewLimiter(rate.Every(time.Duration(cfg.Notifications.MinInterval)*time.Second), 1)
	}
	return svc
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	limiter      *rate.Limiter
	stateChanges bool
	jobEvents    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	// Only the high-volume state change stream is throttled.
	if event == EventComicStateChanged && n.limiter != nil && !n.limiter.Allow() {
		return fmt.Errorf("%w: %s", ErrThrottled, event)
	}
	if err := n.send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventComicStateChanged:
		if !n.stateChanges {
			return message{}, false
		}
		to := payloadString(payload, "to")
		return message{
			title: "comicshelf - Comic Updated",
			body:  fmt.Sprintf("%s: %s -> %s", payloadString(payload, "filename"), payloadString(payload, "from"), to),
			tags:  []string{"comicshelf", "comic", to},
		}, true
	case EventJobCompleted:
		if !n.jobEvents {
			return message{}, false
		}
		return message{
			title: "comicshelf - Job Complete",
			body: fmt.Sprintf("%s finished: %d written, %d skipped",
				payloadString(payload, "jobId"), payloadInt(payload, "written"), payloadInt(payload, "skipped")),
			tags: []string{"comicshelf", "job", "completed"},
		}, true
	case EventJobFailed:
		if !n.jobEvents {
			return message{}, false
		}
		return message{
			title:    "comicshelf - Job Failed",
			body:     fmt.Sprintf("%s failed: %s", payloadString(payload, "jobId"), payloadString(payload, "error")),
			tags:     []string{"comicshelf", "job", "failed"},
			priority: "high",
		}, true
	case EventTaskFailed:
		return message{
			title: "comicshelf - Task Failed",
			body:  fmt.Sprintf("%s failed: %s", payloadString(payload, "task"), payloadString(payload, "error")),
			tags:  []string{"comicshelf", "task", "failed"},
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("Error")
		if label := payloadString(payload, "context"); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if errText := payloadString(payload, "error"); errText != "" {
			b.WriteString(errText)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "comicshelf - Error",
			body:     b.String(),
			tags:     []string{"comicshelf", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "comicshelf - Test",
			body:     "Notification system test",
			tags:     []string{"comicshelf", "test"},
			priority: "low",
		}, true
	default:
		// Page transitions and job launches are AMQP-only.
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func payloadInt(payload Payload, key string) int64 {
	switch v := payload[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// Noop returns a Service that discards every event.
func Noop() Service { return noopService{} }
