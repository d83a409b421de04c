package lifecycle_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"comicshelf/internal/events"
	"comicshelf/internal/lifecycle"
	"comicshelf/internal/logging"
	"comicshelf/internal/notifications"
	"comicshelf/internal/store"
	"comicshelf/internal/testsupport"
)

type fakeComicSaver struct {
	saved []store.ComicState
	err   error
}

func (f *fakeComicSaver) SaveComic(_ context.Context, comic *store.Comic) error {
	f.saved = append(f.saved, comic.State)
	return f.err
}

type recordedTransition struct {
	name     string
	from, to store.ComicState
}

func recordingListener(name string, calls *[]recordedTransition, err error) lifecycle.ComicListener {
	return func(_ context.Context, from, to store.ComicState, _ *store.Comic) error {
		*calls = append(*calls, recordedTransition{name: name, from: from, to: to})
		return err
	}
}

func TestFireEventWithNilEntityDoesNothing(t *testing.T) {
	saver := &fakeComicSaver{}
	handler := lifecycle.NewComicHandler(saver, logging.NewNop())
	var calls []recordedTransition
	handler.AddListener(recordingListener("only", &calls, nil))

	handler.FireEvent(context.Background(), nil, lifecycle.ComicContentsProcessed)

	if len(saver.saved) != 0 {
		t.Fatalf("expected no save, got %v", saver.saved)
	}
	if len(calls) != 0 {
		t.Fatalf("expected no listener calls, got %v", calls)
	}
}

func TestPublishFailureDoesNotBlockPersistenceOrSiblings(t *testing.T) {
	saver := &fakeComicSaver{}
	handler := lifecycle.NewComicHandler(saver, logging.NewNop())

	var calls []recordedTransition
	publishErr := fmt.Errorf("%w: broker unreachable", notifications.ErrPublish)
	handler.AddListener(recordingListener("publisher", &calls, publishErr))
	handler.AddListener(func(context.Context, store.ComicState, store.ComicState, *store.Comic) error {
		panic("listener bug")
	})
	handler.AddListener(recordingListener("second", &calls, nil))

	comic := &store.Comic{ID: 1, FilePath: "/l/a.cbz", State: store.ComicUnprocessed}
	handler.FireEvent(context.Background(), comic, lifecycle.ComicContentsProcessed)

	if comic.State != store.ComicContentsProcessed {
		t.Fatalf("unexpected state %s", comic.State)
	}
	if len(saver.saved) != 1 || saver.saved[0] != store.ComicContentsProcessed {
		t.Fatalf("expected one persisted write, got %v", saver.saved)
	}
	if len(calls) != 2 || calls[0].name != "publisher" || calls[1].name != "second" {
		t.Fatalf("expected listeners in registration order, got %v", calls)
	}
	if calls[1].from != store.ComicUnprocessed || calls[1].to != store.ComicContentsProcessed {
		t.Fatalf("unexpected transition reported %+v", calls[1])
	}
}

func TestIllegalTransitionIsIgnored(t *testing.T) {
	saver := &fakeComicSaver{}
	handler := lifecycle.NewComicHandler(saver, logging.NewNop())
	var calls []recordedTransition
	handler.AddListener(recordingListener("only", &calls, nil))

	comic := &store.Comic{ID: 2, State: store.ComicAdded}
	handler.FireEvent(context.Background(), comic, lifecycle.ComicProcessingComplete)

	if comic.State != store.ComicAdded {
		t.Fatalf("state changed on illegal transition: %s", comic.State)
	}
	if len(saver.saved) != 0 || len(calls) != 0 {
		t.Fatalf("expected no side effects, saved=%v calls=%v", saver.saved, calls)
	}
}

func TestSaveFailureSkipsListenersButKeepsState(t *testing.T) {
	saver := &fakeComicSaver{err: errors.New("database is locked")}
	handler := lifecycle.NewComicHandler(saver, logging.NewNop())
	var calls []recordedTransition
	handler.AddListener(recordingListener("only", &calls, nil))

	comic := &store.Comic{ID: 3, State: store.ComicStable}
	handler.FireEvent(context.Background(), comic, lifecycle.ComicMarkedForDeletion)

	if comic.State != store.ComicDeleted {
		t.Fatalf("expected in-memory state to advance, got %s", comic.State)
	}
	if len(calls) != 0 {
		t.Fatalf("expected listeners skipped after save failure, got %v", calls)
	}
}

func TestComicTransitionsApplyMarks(t *testing.T) {
	tests := []struct {
		name   string
		start  store.Comic
		events []lifecycle.ComicEvent
		want   store.Comic
	}{
		{
			name:   "processing pipeline",
			start:  store.Comic{State: store.ComicAdded},
			events: []lifecycle.ComicEvent{lifecycle.ComicReadyForProcessing, lifecycle.ComicContentsProcessed, lifecycle.ComicProcessingComplete},
			want:   store.Comic{State: store.ComicStable},
		},
		{
			name:   "recreation round trip",
			start:  store.Comic{State: store.ComicStable},
			events: []lifecycle.ComicEvent{lifecycle.ComicMarkedForRecreation, lifecycle.ComicArchiveRecreated},
			want:   store.Comic{State: store.ComicStable},
		},
		{
			name:   "metadata update marks organization",
			start:  store.Comic{State: store.ComicStable},
			events: []lifecycle.ComicEvent{lifecycle.ComicMarkedForMetadataUpdate, lifecycle.ComicMetadataUpdated},
			want:   store.Comic{State: store.ComicChanged, OrganizeMarked: true},
		},
		{
			name:   "organized clears mark",
			start:  store.Comic{State: store.ComicChanged, OrganizeMarked: true},
			events: []lifecycle.ComicEvent{lifecycle.ComicOrganized},
			want:   store.Comic{State: store.ComicStable},
		},
		{
			name:   "delete and restore",
			start:  store.Comic{State: store.ComicUnprocessed},
			events: []lifecycle.ComicEvent{lifecycle.ComicMarkedForDeletion, lifecycle.ComicUnmarkedForDeletion},
			want:   store.Comic{State: store.ComicStable},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := lifecycle.NewComicHandler(&fakeComicSaver{}, logging.NewNop())
			comic := tc.start
			for _, ev := range tc.events {
				handler.FireEvent(context.Background(), &comic, ev)
			}
			if comic.State != tc.want.State ||
				comic.RecreateMarked != tc.want.RecreateMarked ||
				comic.OrganizeMarked != tc.want.OrganizeMarked ||
				comic.MetadataUpdateMarked != tc.want.MetadataUpdateMarked {
				t.Fatalf("got %+v, want %+v", comic, tc.want)
			}
		})
	}
}

func TestComicHandlerPersistsThroughStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	handler := lifecycle.NewComicHandler(st, logging.NewNop())
	ctx := context.Background()

	comic := testsupport.SeedComic(t, st, "/l/persist.cbz", store.ComicStable)
	handler.FireEvent(ctx, comic, lifecycle.ComicMarkedForRecreation)

	fetched, err := st.GetComic(ctx, comic.ID)
	if err != nil {
		t.Fatalf("GetComic: %v", err)
	}
	if fetched.State != store.ComicChanged || !fetched.RecreateMarked {
		t.Fatalf("unexpected persisted comic %+v", fetched)
	}
}

func TestPageHandlerSavedToCache(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	comic := testsupport.SeedComic(t, st, "/l/pages.cbz", store.ComicStable)
	pages, err := st.ReplacePages(ctx, comic.ID, []string{"000.jpg"})
	if err != nil {
		t.Fatalf("ReplacePages: %v", err)
	}
	page := pages[0]
	page.CachePending = true

	handler := lifecycle.NewPageHandler(st, logging.NewNop())
	var seen []store.PageState
	handler.AddListener(func(_ context.Context, _, to store.PageState, _ *store.Page) error {
		seen = append(seen, to)
		return nil
	})

	handler.FireEvent(ctx, page, lifecycle.PageSavedToCache)
	handler.FireEvent(ctx, page, lifecycle.PageMarkForDeletion)
	handler.FireEvent(ctx, page, lifecycle.PageSavedToCache)

	fetched, _ := st.GetPage(ctx, page.ID)
	if !fetched.AddedToCache || fetched.CachePending || fetched.State != store.PageDeleted {
		t.Fatalf("unexpected persisted page %+v", fetched)
	}
	if len(seen) != 2 {
		t.Fatalf("expected two successful transitions, got %v", seen)
	}
}

type fakeBus struct {
	events []events.Event
	err    error
}

func (f *fakeBus) Publish(ev events.Event) error {
	f.events = append(f.events, ev)
	return f.err
}

func TestComicTriggerListenerTopics(t *testing.T) {
	tests := []struct {
		name  string
		start store.Comic
		event lifecycle.ComicEvent
		want  []events.Topic
	}{
		{"unprocessed", store.Comic{State: store.ComicAdded}, lifecycle.ComicReadyForProcessing, []events.Topic{events.TopicComicsUnprocessed}},
		{"contents processed", store.Comic{State: store.ComicUnprocessed}, lifecycle.ComicContentsProcessed, []events.Topic{events.TopicPagesHashRequired}},
		{"processing complete", store.Comic{State: store.ComicContentsProcessed}, lifecycle.ComicProcessingComplete, []events.Topic{events.TopicComicsProcessed}},
		{"deleted ignores marks", store.Comic{State: store.ComicChanged, OrganizeMarked: true}, lifecycle.ComicMarkedForDeletion, []events.Topic{events.TopicComicsMarkedForDeletion}},
		{"details updated", store.Comic{State: store.ComicStable}, lifecycle.ComicDetailsUpdated, []events.Topic{events.TopicComicsMarkedForOrganizing}},
		{"recreation", store.Comic{State: store.ComicStable}, lifecycle.ComicMarkedForRecreation, []events.Topic{events.TopicComicsMarkedForRecreation}},
		{"metadata", store.Comic{State: store.ComicStable}, lifecycle.ComicMarkedForMetadataUpdate, []events.Topic{events.TopicComicsMarkedForMetadata}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bus := &fakeBus{}
			handler := lifecycle.NewComicHandler(&fakeComicSaver{}, logging.NewNop())
			handler.AddListener(lifecycle.ComicTriggerListener(bus))

			comic := tc.start
			comic.ID = 9
			handler.FireEvent(context.Background(), &comic, tc.event)

			if len(bus.events) != len(tc.want) {
				t.Fatalf("got %v, want %v", bus.events, tc.want)
			}
			for i, topic := range tc.want {
				if bus.events[i].Topic != topic || bus.events[i].ComicID != 9 {
					t.Fatalf("event %d = %+v, want topic %s", i, bus.events[i], topic)
				}
			}
		})
	}
}

type capturingService struct {
	event   notifications.Event
	payload notifications.Payload
	err     error
}

func (c *capturingService) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	c.event = event
	c.payload = payload
	return c.err
}

func TestComicNotificationListener(t *testing.T) {
	svc := &capturingService{}
	listener := lifecycle.ComicNotificationListener(svc, logging.NewNop())
	comic := &store.Comic{ID: 4, FilePath: "/l/Saga 002.cbz"}

	if err := listener(context.Background(), store.ComicContentsProcessed, store.ComicStable, comic); err != nil {
		t.Fatalf("listener: %v", err)
	}
	if svc.event != notifications.EventComicStateChanged {
		t.Fatalf("unexpected event %s", svc.event)
	}
	if svc.payload["filename"] != "Saga 002.cbz" || svc.payload["to"] != "stable" {
		t.Fatalf("unexpected payload %v", svc.payload)
	}

	svc.err = fmt.Errorf("%w: comic_state_changed", notifications.ErrThrottled)
	if err := listener(context.Background(), store.ComicStable, store.ComicChanged, comic); err != nil {
		t.Fatalf("expected throttled publish to be swallowed, got %v", err)
	}

	svc.err = fmt.Errorf("%w: down", notifications.ErrPublish)
	if err := listener(context.Background(), store.ComicStable, store.ComicChanged, comic); !errors.Is(err, notifications.ErrPublish) {
		t.Fatalf("expected publish failure surfaced to handler, got %v", err)
	}
}
