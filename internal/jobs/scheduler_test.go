package jobs_test

import (
	"context"
	"testing"
	"time"

	"comicshelf/internal/events"
	"comicshelf/internal/jobs"
	"comicshelf/internal/logging"
	"comicshelf/internal/options"
	"comicshelf/internal/store"
)

func TestSchedulerEventsLaunchSubscribedInitiators(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		f := newFixture()
		f.probes.counts[store.EligibleUnprocessedComics] = 2
		if enabled {
			f.options[options.FeatureEventTriggers] = "true"
		}
		initiators := []*jobs.Initiator{f.initiator(definition(t, jobs.JobProcessComics, nil))}
		sched, err := jobs.NewScheduler(initiators, func(string) string { return "" }, logging.NewNop())
		if err != nil {
			t.Fatalf("NewScheduler: %v", err)
		}

		bus := events.NewBus(8, logging.NewNop())
		sched.Subscribe(bus, f.options)
		drained := make(chan struct{})
		bus.Subscribe(events.TopicComicsMarkedForDeletion, func(context.Context, events.Event) { close(drained) })

		ctx, cancel := context.WithCancel(context.Background())
		go func() { _ = bus.Run(ctx) }()
		if err := bus.Publish(events.Event{Topic: events.TopicComicsUnprocessed, ComicID: 1}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		if err := bus.Publish(events.Event{Topic: events.TopicComicsMarkedForDeletion}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		select {
		case <-drained:
		case <-time.After(5 * time.Second):
			t.Fatal("bus did not dispatch")
		}
		cancel()

		want := 0
		if enabled {
			want = 1
		}
		if got := len(f.runner.launches()); got != want {
			t.Fatalf("event triggers enabled=%v: launches=%d, want %d", enabled, got, want)
		}
	}
}

func TestSchedulerEntriesAndInvalidSpecs(t *testing.T) {
	f := newFixture()
	initiators := jobs.NewInitiators(jobs.Definitions(nil, f.options), jobs.Deps{
		Probes: f.probes, Registry: f.registry, Options: f.options, Runner: f.runner,
	}, logging.NewNop())

	specs := map[string]string{jobs.JobProcessComics: "@every 1m", jobs.JobPurgeLibrary: "0 3 * * *"}
	sched, err := jobs.NewScheduler(initiators, func(id string) string { return specs[id] }, logging.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	entries := sched.Entries()
	if len(entries) != 2 || entries[0].JobID != jobs.JobProcessComics || entries[1].JobID != jobs.JobPurgeLibrary {
		t.Fatalf("unexpected entries %+v", entries)
	}

	_, err = jobs.NewScheduler(initiators, func(string) string { return "every minute" }, logging.NewNop())
	if err == nil {
		t.Fatal("expected invalid cron expression to be rejected")
	}
	if _, err := jobs.ParseSchedule("*/5 * * * *"); err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
}

func TestSchedulerRunAllAndShutdown(t *testing.T) {
	f := newFixture()
	f.probes.counts[store.EligibleUnprocessedComics] = 1
	sched, err := jobs.NewScheduler([]*jobs.Initiator{f.initiator(definition(t, jobs.JobProcessComics, nil))},
		func(string) string { return "@every 1h" }, logging.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	sched.RunAll(context.Background())
	if len(f.runner.launches()) != 1 {
		t.Fatal("RunAll did not execute the initiator")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
