package tasks_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"comicshelf/internal/logging"
	"comicshelf/internal/store"
	"comicshelf/internal/tasks"
	"comicshelf/internal/testsupport"
)

const testType tasks.Type = "TEST"

type dispatch struct {
	task   tasks.Task
	origin *store.PersistedTask
}

type fakeRunner struct {
	mu          sync.Mutex
	dispatched  []dispatch
	resubmitted int
	err         error
}

func (f *fakeRunner) RunTask(_ context.Context, task tasks.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := task.(*tasks.Monitor); ok {
		f.resubmitted++
		return nil
	}
	f.dispatched = append(f.dispatched, dispatch{task: task})
	return f.err
}

func (f *fakeRunner) RunTaskFor(_ context.Context, task tasks.Task, origin *store.PersistedTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.dispatched = append(f.dispatched, dispatch{task: task, origin: origin})
	return nil
}

func testRegistry(onStart func(label string)) *tasks.Registry {
	reg := tasks.NewRegistry()
	reg.Register(testType, func(props tasks.Properties) (tasks.Task, error) {
		if props["label"] == "" {
			return nil, errors.New("label missing")
		}
		task := newStubTask(props["label"])
		if onStart == nil {
			return task, nil
		}
		return &callbackTask{stubTask: task, onStart: onStart}, nil
	})
	return reg
}

type callbackTask struct {
	*stubTask
	onStart func(string)
}

func (c *callbackTask) Start(ctx context.Context) error {
	c.onStart(c.name)
	return c.stubTask.Start(ctx)
}

func enqueueTest(t *testing.T, st *store.Store, count int) []*store.PersistedTask {
	t.Helper()
	records := make([]*store.PersistedTask, 0, count)
	for i := 0; i < count; i++ {
		rec, err := st.EnqueueTask(context.Background(), string(testType), map[string]string{"label": fmt.Sprintf("task-%03d", i)})
		if err != nil {
			t.Fatalf("EnqueueTask: %v", err)
		}
		records = append(records, rec)
	}
	return records
}

func TestMonitorDispatchesEveryQueuedTaskWithItsRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	queued := enqueueTest(t, st, 100)

	runner := &fakeRunner{}
	monitor := tasks.NewMonitor(tasks.MonitorConfig{
		Queue:        st,
		Registry:     testRegistry(nil),
		Runner:       runner,
		PollInterval: time.Millisecond,
		BatchSize:    100,
		Logger:       logging.NewNop(),
	})
	if err := monitor.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if len(runner.dispatched) != 100 {
		t.Fatalf("expected 100 dispatches, got %d", len(runner.dispatched))
	}
	for i, d := range runner.dispatched {
		if d.origin == nil || d.origin.ID != queued[i].ID {
			t.Fatalf("dispatch %d: unexpected origin %#v", i, d.origin)
		}
		if got := d.task.Description(); got != fmt.Sprintf("task-%03d", i) {
			t.Fatalf("dispatch %d: unexpected task %q", i, got)
		}
	}
	if monitor.Dispatched() != 100 {
		t.Fatalf("expected dispatched counter 100, got %d", monitor.Dispatched())
	}
	stats, err := st.TaskStats(context.Background())
	if err != nil {
		t.Fatalf("TaskStats: %v", err)
	}
	if stats.Pending != 0 || stats.Claimed != 100 {
		t.Fatalf("unexpected queue stats %#v", stats)
	}
}

func TestMonitorRejectsUndecodableTasksWithoutStopping(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	unknown, err := st.EnqueueTask(ctx, "FROBNICATE", nil)
	if err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
	broken, err := st.EnqueueTask(ctx, string(testType), map[string]string{})
	if err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
	enqueueTest(t, st, 1)

	runner := &fakeRunner{}
	monitor := tasks.NewMonitor(tasks.MonitorConfig{
		Queue:        st,
		Registry:     testRegistry(nil),
		Runner:       runner,
		PollInterval: time.Millisecond,
		Logger:       logging.NewNop(),
	})
	err = monitor.Start(ctx)
	if !errors.Is(err, tasks.ErrNoDecoder) {
		t.Fatalf("expected ErrNoDecoder, got %v", err)
	}
	if len(runner.dispatched) != 1 {
		t.Fatalf("expected the decodable task to be dispatched, got %d", len(runner.dispatched))
	}

	monitor.AfterExecution(ctx)
	if runner.resubmitted != 1 {
		t.Fatalf("expected resubmission after a failed cycle, got %d", runner.resubmitted)
	}

	all, err := st.ListTasks(ctx, false)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	failures := map[int64]string{}
	for _, rec := range all {
		if rec.FinishedAt != nil {
			failures[rec.ID] = rec.Failure
		}
	}
	if !strings.Contains(failures[unknown.ID], "no decoder") {
		t.Fatalf("unknown task not recorded as failed: %q", failures[unknown.ID])
	}
	if !strings.Contains(failures[broken.ID], "label missing") {
		t.Fatalf("broken task not recorded as failed: %q", failures[broken.ID])
	}
	if len(failures) != 2 {
		t.Fatalf("expected two finished records, got %#v", failures)
	}
}

func TestMonitorResubmitsAfterEveryCycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	runner := &fakeRunner{}
	monitor := tasks.NewMonitor(tasks.MonitorConfig{
		Queue:        st,
		Runner:       runner,
		PollInterval: time.Millisecond,
		Logger:       logging.NewNop(),
	})

	const cycles = 5
	ctx := context.Background()
	for i := 0; i < cycles; i++ {
		if err := monitor.Start(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		if monitor.State() != tasks.MonitorIdle {
			t.Fatalf("cycle %d: expected idle state, got %s", i, monitor.State())
		}
		monitor.AfterExecution(ctx)
	}
	if runner.resubmitted != cycles {
		t.Fatalf("expected %d resubmissions, got %d", cycles, runner.resubmitted)
	}
	if monitor.Cycles() != cycles {
		t.Fatalf("expected %d cycles, got %d", cycles, monitor.Cycles())
	}
}

func TestMonitorTreatsCancellationAsShutdown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	runner := &fakeRunner{}
	monitor := tasks.NewMonitor(tasks.MonitorConfig{
		Queue:        st,
		Runner:       runner,
		PollInterval: time.Hour,
		Logger:       logging.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Start(ctx) }()

	waitFor(t, "sleeping state", func() bool { return monitor.State() == tasks.MonitorSleeping })
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not wake on cancellation")
	}

	monitor.AfterExecution(ctx)
	if runner.resubmitted != 0 {
		t.Fatalf("expected no resubmission after shutdown, got %d", runner.resubmitted)
	}
}

func TestMonitorPrunesFinishedTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	rec := enqueueTest(t, st, 1)[0]
	if _, err := st.ClaimTasks(ctx, 1); err != nil {
		t.Fatalf("ClaimTasks: %v", err)
	}
	if err := st.FinishTask(ctx, rec.ID, ""); err != nil {
		t.Fatalf("FinishTask: %v", err)
	}

	monitor := tasks.NewMonitor(tasks.MonitorConfig{
		Queue:        st,
		Runner:       &fakeRunner{},
		PollInterval: time.Millisecond,
		Retention:    time.Nanosecond,
		Logger:       logging.NewNop(),
	})
	time.Sleep(2 * time.Millisecond)
	if err := monitor.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	all, err := st.ListTasks(ctx, false)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected finished task to be pruned, got %d", len(all))
	}
}

func TestMonitorDrivesManagerEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	enqueueTest(t, st, 3)

	var (
		mu   sync.Mutex
		seen []string
	)
	mgr := startManager(t, tasks.ManagerConfig{Workers: 2, Recorder: st})
	monitor := tasks.NewMonitor(tasks.MonitorConfig{
		Queue: st,
		Registry: testRegistry(func(label string) {
			mu.Lock()
			seen = append(seen, label)
			mu.Unlock()
		}),
		Runner:       mgr,
		PollInterval: 5 * time.Millisecond,
		BatchSize:    2,
		Logger:       logging.NewNop(),
	})
	if err := mgr.RunTask(context.Background(), monitor); err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	waitFor(t, "queued tasks", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	})
	waitFor(t, "monitor cycles", func() bool { return monitor.Cycles() >= 3 })
	waitFor(t, "finished records", func() bool {
		stats, err := st.TaskStats(context.Background())
		return err == nil && stats.Finished == 3
	})
	mgr.Stop()
	if monitor.State() != tasks.MonitorIdle {
		t.Fatalf("expected idle monitor after stop, got %s", monitor.State())
	}
}
