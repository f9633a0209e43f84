package testsupport

import (
	"context"
	"testing"
	"time"

	"stagehand/internal/config"
	"stagehand/internal/store"
	"stagehand/internal/workflow"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...store.Option) *store.Store {
	t.Helper()

	st, err := store.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewTask persists a task in the given status for tests.
func NewTask(t testing.TB, st *store.Store, repo, feature, id string, status workflow.Status) *workflow.Task {
	t.Helper()

	task := workflow.NewTask(repo, feature, id, "Task "+id, time.Now())
	task.Status = status
	if err := st.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("store.CreateTask: %v", err)
	}
	return task
}

// MustEnqueue enqueues a feature and fails the test on error.
func MustEnqueue(t testing.TB, st *store.Store, repo, feature, tool string) store.EnqueueResult {
	t.Helper()

	res, err := st.Enqueue(context.Background(), repo, feature, tool)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return res
}
