package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"stagehand/internal/testsupport"
	"stagehand/internal/workflow"
)

const checkoutManifest = `
repo: shop
feature: checkout
title: Checkout flow
tasks:
  - id: T-1
    title: Cart summary
    acceptanceCriteria:
      - text: totals include tax
  - id: T-2
    title: Payment form
`

func importCheckout(t *testing.T, env *cliTestEnv) {
	t.Helper()
	path := filepath.Join(testsupport.BaseDir(env.cfg), "checkout.yaml")
	testsupport.WriteFile(t, path, checkoutManifest)
	out := env.run(t, "task", "import", path)
	requireContains(t, out, "created 2, skipped 0")

	out = env.run(t, "task", "import", path, "--skip-existing")
	requireContains(t, out, "created 0, skipped 2")
}

func TestTaskImportAndList(t *testing.T) {
	env := setupCLITestEnv(t)
	importCheckout(t, env)

	out := env.run(t, "task", "list")
	requireContains(t, out, "checkout")
	requireContains(t, out, "Checkout flow")

	out = env.run(t, "task", "list", "shop", "checkout")
	requireContains(t, out, "Cart summary")
	requireContains(t, out, string(workflow.StatusPendingProductDirector))

	out = env.run(t, "task", "list", "shop", "checkout", "--json")
	var tasks []workflow.Task
	if err := json.Unmarshal([]byte(out), &tasks); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(tasks) != 2 || tasks[0].ID != "T-1" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestTaskReviewPipelineThroughCLI(t *testing.T) {
	env := setupCLITestEnv(t)
	importCheckout(t, env)

	// Out-of-order reviewer is rejected and nothing changes.
	if _, _, err := runCLI(t, []string{"task", "review", "shop", "checkout", "T-1",
		"--role", "architect", "--decision", "approve"}, env.configPath); err == nil {
		t.Fatal("expected architect review to be rejected while awaiting the product director")
	}

	fieldsPath := filepath.Join(testsupport.BaseDir(env.cfg), "arch.yaml")
	testsupport.WriteFile(t, fieldsPath, "technicalApproach: reuse cart service\ncomplexity: 4\n")

	out := env.run(t, "task", "review", "shop", "checkout", "T-1", "--role", "productDirector", "--decision", "approve")
	requireContains(t, out, "PendingArchitect")
	env.run(t, "task", "review", "shop", "checkout", "T-1", "--role", "architect", "--decision", "approve", "--fields", fieldsPath)

	out = env.run(t, "task", "progress", "shop", "checkout", "T-1")
	requireContains(t, out, "Product Director, Architect")
	requireContains(t, out, "UI/UX Expert")

	env.run(t, "task", "review", "shop", "checkout", "T-1", "--role", "uiUxExpert", "--decision", "reject", "--notes", "needs a mobile layout")
	out = env.run(t, "task", "show", "shop", "checkout", "T-1")
	requireContains(t, out, string(workflow.StatusNeedsRefinement))
	requireContains(t, out, "needs a mobile layout")

	out = env.run(t, "task", "reset", "shop", "checkout", "T-1", "--notes", "layout added")
	requireContains(t, out, string(workflow.StatusPendingProductDirector))

	out = env.run(t, "task", "show", "shop", "checkout", "T-1", "--json")
	var task workflow.Task
	if err := json.Unmarshal([]byte(out), &task); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(task.Transitions) != 4 {
		t.Fatalf("expected 4 transitions, got %d", len(task.Transitions))
	}
}

func TestTaskDevPipelineThroughCLI(t *testing.T) {
	env := setupCLITestEnv(t)
	st := testsupport.MustOpenStore(t, env.cfg)
	testsupport.NewTask(t, st, "shop", "checkout", "T-1", workflow.StatusReadyForDevelopment)

	env.run(t, "task", "move", "shop", "checkout", "T-1", "--to", "ToDo", "--actor", "orchestrator")
	env.run(t, "task", "move", "shop", "checkout", "T-1", "--to", "InProgress", "--actor", "developer")
	env.run(t, "task", "move", "shop", "checkout", "T-1", "--to", "InReview", "--actor", "developer")
	out := env.run(t, "task", "decide", "shop", "checkout", "T-1", "--actor", "codeReviewer", "--decision", "approve")
	requireContains(t, out, "InQA")
	out = env.run(t, "task", "decide", "shop", "checkout", "T-1", "--actor", "qa", "--decision", "approve")
	requireContains(t, out, "Done")

	if _, _, err := runCLI(t, []string{"task", "move", "shop", "checkout", "T-1",
		"--to", "InProgress", "--actor", "developer"}, env.configPath); err == nil {
		t.Fatal("expected Done to be terminal")
	}
}

func TestTaskUnknown(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"task", "show", "shop", "checkout", "nope"}, env.configPath)
	if err == nil {
		t.Fatal("expected not found")
	}
	requireContains(t, err.Error(), "does not exist")
}
