package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stagehand/internal/config"
	"stagehand/internal/events"
	"stagehand/internal/scheduler"
	"stagehand/internal/store"
	"stagehand/internal/testsupport"
	"stagehand/internal/workflow"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func setStatus(t *testing.T, st *store.Store, clock *stepClock, repo, feature, id string, to workflow.Status) {
	t.Helper()
	ctx := context.Background()
	task, err := st.GetTask(ctx, repo, feature, id)
	if err != nil || task == nil {
		t.Fatalf("GetTask %s: %+v, %v", id, task, err)
	}
	from := task.Status
	now := clock.Now()
	task.Status = to
	task.UpdatedAt = now
	transition := workflow.Transition{From: from, To: to, Actor: workflow.RoleOrchestrator, At: now, Notes: "test"}
	if err := st.ApplyTransition(ctx, task, from, transition); err != nil {
		t.Fatalf("ApplyTransition %s: %v", id, err)
	}
}

func TestScanEnqueuesOnlyFullyReadyFeatures(t *testing.T) {
	// Ahead of the wall clock so task rows created with time.Now stay older.
	clock := &stepClock{now: time.Date(2100, 5, 1, 9, 0, 0, 0, time.UTC)}
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerEnabled(true))
	st := testsupport.MustOpenStore(t, cfg, store.WithClock(clock.Now))
	ctx := context.Background()

	testsupport.NewTask(t, st, "repo", "F", "T-1", workflow.StatusReadyForDevelopment)
	testsupport.NewTask(t, st, "repo", "F", "T-2", workflow.StatusReadyForDevelopment)
	testsupport.NewTask(t, st, "repo", "F", "T-3", workflow.StatusToDo)

	bus := events.NewBus(16)
	defer bus.Close()
	sub, cancel := bus.Subscribe(ctx)
	defer cancel()
	sched := scheduler.New(cfg, st, nil, scheduler.WithPublisher(bus))

	if n, err := sched.Scan(ctx); err != nil || n != 0 {
		t.Fatalf("expected no items while T-3 is ToDo, got %d, %v", n, err)
	}

	setStatus(t, st, clock, "repo", "F", "T-3", workflow.StatusReadyForDevelopment)
	if n, err := sched.Scan(ctx); err != nil || n != 1 {
		t.Fatalf("expected one item once every task is ready, got %d, %v", n, err)
	}
	if n, err := sched.Scan(ctx); err != nil || n != 0 {
		t.Fatalf("expected no duplicate item, got %d, %v", n, err)
	}

	items, err := st.ListQueue(ctx)
	if err != nil || len(items) != 1 || items[0].FeatureSlug != "F" || items[0].CLITool != "claude" {
		t.Fatalf("unexpected queue: %+v, %v", items, err)
	}

	item, err := st.Claim(ctx, "w")
	if err != nil || item == nil {
		t.Fatalf("Claim: %+v, %v", item, err)
	}
	if err := st.Complete(ctx, item.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if n, err := sched.Scan(ctx); err != nil || n != 0 {
		t.Fatalf("completed feature must not be re-queued without task changes, got %d, %v", n, err)
	}

	setStatus(t, st, clock, "repo", "F", "T-2", workflow.StatusReadyForDevelopment)
	if n, err := sched.Scan(ctx); err != nil || n != 1 {
		t.Fatalf("expected a new item after a task change, got %d, %v", n, err)
	}

	var enqueued int
	for done := false; !done; {
		select {
		case evt := <-sub:
			if evt.Kind == events.KindQueueEnqueued {
				enqueued++
			}
		default:
			done = true
		}
	}
	if enqueued != 2 {
		t.Fatalf("expected 2 enqueue events, got %d", enqueued)
	}
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestScanRemembersFeatureAfterRemoveAndPrune(t *testing.T) {
	clock := &stepClock{now: time.Date(2100, 5, 1, 9, 0, 0, 0, time.UTC)}
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerEnabled(true))
	st := testsupport.MustOpenStore(t, cfg, store.WithClock(clock.Now))
	ctx := context.Background()
	sched := scheduler.New(cfg, st, nil)

	testsupport.NewTask(t, st, "repo", "F", "T-1", workflow.StatusReadyForDevelopment)
	if n, err := sched.Scan(ctx); err != nil || n != 1 {
		t.Fatalf("first scan: got %d, %v", n, err)
	}
	items, err := st.ListQueue(ctx)
	if err != nil || len(items) != 1 {
		t.Fatalf("ListQueue: %+v, %v", items, err)
	}

	// Removing a pending item cancels it; the next scan must not recreate it.
	if err := st.RemovePending(ctx, items[0].ID); err != nil {
		t.Fatalf("RemovePending: %v", err)
	}
	if n, err := sched.Scan(ctx); err != nil || n != 0 {
		t.Fatalf("removed item was re-enqueued: got %d, %v", n, err)
	}

	// A task change makes the feature eligible again.
	setStatus(t, st, clock, "repo", "F", "T-1", workflow.StatusReadyForDevelopment)
	if n, err := sched.Scan(ctx); err != nil || n != 1 {
		t.Fatalf("scan after task change: got %d, %v", n, err)
	}
	item, err := st.Claim(ctx, "w")
	if err != nil || item == nil {
		t.Fatalf("Claim: %+v, %v", item, err)
	}
	if err := st.Fail(ctx, item.ID, "exit status 1"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	// Pruning the failed item must not turn into an automatic retry.
	clock.advance(10 * 24 * time.Hour)
	if removed, err := st.Prune(ctx, 1); err != nil || removed != 1 {
		t.Fatalf("Prune: removed %d, %v", removed, err)
	}
	if n, err := sched.Scan(ctx); err != nil || n != 0 {
		t.Fatalf("pruned feature was re-enqueued: got %d, %v", n, err)
	}
}

func TestScanSkipsWhenWorkerDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.NewTask(t, st, "repo", "F", "T-1", workflow.StatusReadyForDevelopment)

	sched := scheduler.New(cfg, st, nil)
	n, err := sched.Scan(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected disabled scan to enqueue nothing, got %d, %v", n, err)
	}
	items, _ := st.ListQueue(context.Background())
	if len(items) != 0 {
		t.Fatalf("expected empty queue, got %d items", len(items))
	}
}

func TestScanIgnoresEmptyFeatures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerEnabled(true))
	st := testsupport.MustOpenStore(t, cfg)
	if err := st.EnsureFeature(context.Background(), "repo", "empty", ""); err != nil {
		t.Fatalf("EnsureFeature: %v", err)
	}
	n, err := scheduler.New(cfg, st, nil).Scan(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected empty feature to be skipped, got %d, %v", n, err)
	}
}

func TestEligible(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	cases := []struct {
		name  string
		state store.FeatureScanState
		want  bool
	}{
		{"never queued", store.FeatureScanState{Total: 2, Ready: 2, LastTaskUpdate: &t0}, true},
		{"not all ready", store.FeatureScanState{Total: 2, Ready: 1, LastTaskUpdate: &t0}, false},
		{"no tasks", store.FeatureScanState{}, false},
		{"active", store.FeatureScanState{Total: 1, Ready: 1, Active: true, LastTaskUpdate: &t0}, false},
		{"ran before last change", store.FeatureScanState{Total: 1, Ready: 1, LastTaskUpdate: &t1, LastEnqueuedAt: &t0}, true},
		{"ran after last change", store.FeatureScanState{Total: 1, Ready: 1, LastTaskUpdate: &t0, LastEnqueuedAt: &t1}, false},
	}
	for _, tc := range cases {
		if got := scheduler.Eligible(tc.state); got != tc.want {
			t.Errorf("%s: Eligible = %v, want %v", tc.name, got, tc.want)
		}
	}
}

// flakyStore panics on the first scan and fails the second.
type flakyStore struct {
	scans atomic.Int32
}

func (f *flakyStore) GetSettings(context.Context) (store.Settings, error) {
	return store.Settings{CronIntervalSeconds: 30, WorkerEnabled: true, CLITool: "claude"}, nil
}

func (f *flakyStore) ListRepositories(context.Context) ([]store.Repository, error) {
	switch f.scans.Add(1) {
	case 1:
		panic("boom")
	case 2:
		return nil, errors.New("database unavailable")
	default:
		return nil, nil
	}
}

func (f *flakyStore) FeatureScanStates(context.Context, string) ([]store.FeatureScanState, error) {
	return nil, nil
}

func (f *flakyStore) Enqueue(context.Context, string, string, string) (store.EnqueueResult, error) {
	return store.EnqueueResult{}, nil
}

func TestLoopSurvivesPanicsAndErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Workflow.SchedulerMinInterval = 0
	fake := &flakyStore{}
	sched := scheduler.New(&cfg, fake, nil)
	// Keep the loop fast: settings say 30s, so drive scans by hand after the
	// first automatic one.
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sched.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for fake.scans.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fake.scans.Load() < 1 {
		t.Fatal("first scan never ran")
	}
	if _, err := sched.Scan(context.Background()); err == nil {
		t.Fatal("expected the second scan to report the store error")
	}
	if n, err := sched.Scan(context.Background()); err != nil || n != 0 {
		t.Fatalf("expected a clean third scan, got %d, %v", n, err)
	}
	if !sched.Status().Running {
		t.Fatal("scheduler should still be running")
	}
	sched.Stop()
	if sched.Status().Running {
		t.Fatal("scheduler should be stopped")
	}
}
