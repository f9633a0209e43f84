package main

import (
	"context"
	"encoding/json"
	"testing"

	"stagehand/internal/store"
	"stagehand/internal/testsupport"
	"stagehand/internal/workflow"
)

func TestQueueEnqueueListRemove(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithReposFolder("shop"))

	out := env.run(t, "queue", "list")
	requireContains(t, out, "Queue is empty")

	out = env.run(t, "queue", "enqueue", "shop", "checkout")
	requireContains(t, out, "Queued shop/checkout as item 1 (claude)")
	out = env.run(t, "queue", "enqueue", "shop", "checkout")
	requireContains(t, out, "already queued as item 1")

	out = env.run(t, "queue", "list", "--status", "pending")
	requireContains(t, out, "checkout")

	out = env.run(t, "queue", "list", "--json")
	var items []store.QueueItem
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(items) != 1 || items[0].Status != store.QueueStatusPending {
		t.Fatalf("unexpected items: %+v", items)
	}

	out = env.run(t, "queue", "show", "1")
	requireContains(t, out, "pending")

	out = env.run(t, "queue", "status")
	requireContains(t, out, "pending")

	out, _, err := runCLI(t, []string{"queue", "retry", "1"}, env.configPath)
	if err == nil {
		t.Fatal("expected retry of a pending item to fail")
	}
	requireContains(t, out, "Item 1 not retried")

	out = env.run(t, "queue", "remove", "1")
	requireContains(t, out, "Item 1 removed")
	out = env.run(t, "queue", "list")
	requireContains(t, out, "Queue is empty")

	out = env.run(t, "queue", "prune", "--days", "1")
	requireContains(t, out, "Pruned 0 item(s)")
}

func TestQueueRejectsBadArguments(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"queue", "list", "--status", "bogus"}, env.configPath); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
	if _, _, err := runCLI(t, []string{"queue", "remove", "0"}, env.configPath); err == nil {
		t.Fatal("expected non-positive id to be rejected")
	}
	if _, _, err := runCLI(t, []string{"queue", "show", "42"}, env.configPath); err == nil {
		t.Fatal("expected missing item to be reported")
	}
	if _, _, err := runCLI(t, []string{"queue", "enqueue", " ", "checkout"}, env.configPath); err == nil {
		t.Fatal("expected blank repo name to be rejected")
	}
}

func TestScanAndWorkCompleteReadyFeature(t *testing.T) {
	env := setupCLITestEnv(t,
		testsupport.WithReposFolder("shop"),
		testsupport.WithWorkerEnabled(true),
		testsupport.WithStubbedBinaries(),
	)
	st := testsupport.MustOpenStore(t, env.cfg)
	testsupport.NewTask(t, st, "shop", "checkout", "T-1", workflow.StatusReadyForDevelopment)
	testsupport.NewTask(t, st, "shop", "checkout", "T-2", workflow.StatusReadyForDevelopment)

	out := env.run(t, "scan")
	requireContains(t, out, "Enqueued 1 feature(s)")

	out = env.run(t, "work", "--once")
	requireContains(t, out, "Processed 1 item(s)")

	item, err := st.GetQueueItem(context.Background(), 1)
	if err != nil || item == nil {
		t.Fatalf("GetQueueItem: %v (%v)", item, err)
	}
	if item.Status != store.QueueStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", item.Status, item.ErrorMessage)
	}

	// Nothing changed since the last run; the feature stays out of the queue.
	out = env.run(t, "scan")
	requireContains(t, out, "Enqueued 0 feature(s)")
}

func TestWorkFailsUnlistedToolAndRetries(t *testing.T) {
	env := setupCLITestEnv(t,
		testsupport.WithReposFolder("shop"),
		testsupport.WithWorkerEnabled(true),
	)
	env.run(t, "queue", "enqueue", "shop", "checkout", "--tool", "bash")

	out := env.run(t, "work")
	requireContains(t, out, "Processed 1 item(s)")

	out = env.run(t, "queue", "show", "1")
	requireContains(t, out, "failed")
	requireContains(t, out, "not allowed")

	out = env.run(t, "queue", "retry", "1", "--reset-retries")
	requireContains(t, out, "Item 1 reset for retry")
	out = env.run(t, "queue", "list", "--status", "pending")
	requireContains(t, out, "checkout")
}

func TestWorkRefusesWhenDisabled(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"work"}, env.configPath)
	if err == nil {
		t.Fatal("expected disabled worker to refuse")
	}
	requireContains(t, err.Error(), "worker is disabled")
}
