package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"comicshelf/internal/notifications"
	"comicshelf/internal/testsupport"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(cfg)
	if err := svc.Publish(context.Background(), notifications.EventJobFailed, notifications.Payload{"jobId": "process_comics"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "comic state changed",
			event: notifications.EventComicStateChanged,
			payload: notifications.Payload{
				"filename": "Saga 001.cbz",
				"from":     "contents_processed",
				"to":       "stable",
			},
			expectTitle:   "comicshelf - Comic Updated",
			expectMessage: "Saga 001.cbz: contents_processed -> stable",
			expectTags:    "comicshelf,comic,stable",
		},
		{
			name:  "job completed",
			event: notifications.EventJobCompleted,
			payload: notifications.Payload{
				"jobId":   "organize_library",
				"written": int64(12),
				"skipped": 2,
			},
			expectTitle:   "comicshelf - Job Complete",
			expectMessage: "organize_library finished: 12 written, 2 skipped",
			expectTags:    "comicshelf,job,completed",
		},
		{
			name:  "job failed",
			event: notifications.EventJobFailed,
			payload: notifications.Payload{
				"jobId": "recreate_comics",
				"error": "too many errors",
			},
			expectTitle:    "comicshelf - Job Failed",
			expectMessage:  "recreate_comics failed: too many errors",
			expectTags:     "comicshelf,job,failed",
			expectPriority: "high",
		},
		{
			name:  "error",
			event: notifications.EventError,
			payload: notifications.Payload{
				"context": "import",
				"error":   "permission denied",
			},
			expectTitle:    "comicshelf - Error",
			expectMessage:  "Error with import: permission denied",
			expectTags:     "comicshelf,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := testsupport.NewConfig(t)
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.JobEvents = false

	svc := notifications.NewService(cfg)
	suppressed := []notifications.Event{
		notifications.EventPageStateChanged,
		notifications.EventJobLaunched,
		notifications.EventJobCompleted,
		notifications.EventJobFailed,
	}

	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"value": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceWrapsTransportFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic disabled", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(cfg).Publish(context.Background(), notifications.EventTest, nil)
	if !errors.Is(err, notifications.ErrPublish) {
		t.Fatalf("expected ErrPublish, got %v", err)
	}
}

func TestNtfyServiceThrottlesStateChanges(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.MinInterval = 60

	svc := notifications.NewService(cfg)
	payload := notifications.Payload{"filename": "a.cbz", "from": "added", "to": "unprocessed"}
	if err := svc.Publish(context.Background(), notifications.EventComicStateChanged, payload); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	err := svc.Publish(context.Background(), notifications.EventComicStateChanged, payload)
	if !errors.Is(err, notifications.ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
	if err := svc.Publish(context.Background(), notifications.EventTaskFailed, notifications.Payload{"task": "x"}); err != nil {
		t.Fatalf("task failures are not throttled: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got)
	}
}

type recordingService struct {
	events []notifications.Event
	err    error
}

func (r *recordingService) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.events = append(r.events, event)
	return r.err
}

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	failing := &recordingService{err: errors.New("broker down")}
	healthy := &recordingService{}
	svc := notifications.Multi(failing, nil, notifications.Noop(), healthy)

	err := svc.Publish(context.Background(), notifications.EventJobLaunched, nil)
	if err == nil || err.Error() != "broker down" {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(failing.events) != 1 || len(healthy.events) != 1 {
		t.Fatalf("expected both services called, got %d and %d", len(failing.events), len(healthy.events))
	}

	if single := notifications.Multi(healthy); single != notifications.Service(healthy) {
		t.Fatal("expected single service to be returned unwrapped")
	}
}

func TestNewFromConfigWithoutBroker(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc, closeFn, err := notifications.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if closeFn == nil {
		t.Fatal("expected close function")
	}
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
