package main

import (
	"encoding/json"
	"testing"

	"stagehand/internal/store"
	"stagehand/internal/testsupport"
)

func TestSettingsShowAndSet(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithReposFolder())

	out := env.run(t, "settings", "show")
	requireContains(t, out, "claude")
	requireContains(t, out, env.cfg.Settings.BaseReposFolder)

	out = env.run(t, "settings", "set", "--cron-interval", "120", "--tool", "codex", "--worker-enabled")
	requireContains(t, out, "codex")
	requireContains(t, out, "120")

	out = env.run(t, "settings", "show", "--json")
	var settings store.Settings
	if err := json.Unmarshal([]byte(out), &settings); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if settings.CronIntervalSeconds != 120 || settings.CLITool != "codex" || !settings.WorkerEnabled {
		t.Fatalf("unexpected settings: %+v", settings)
	}
}

func TestSettingsSetRejectsInvalidValues(t *testing.T) {
	env := setupCLITestEnv(t)

	for _, args := range [][]string{
		{"settings", "set"},
		{"settings", "set", "--cron-interval", "5"},
		{"settings", "set", "--tool", "bash"},
	} {
		if _, _, err := runCLI(t, args, env.configPath); err == nil {
			t.Fatalf("expected %v to fail", args)
		}
	}

	out := env.run(t, "settings", "show", "--json")
	var settings store.Settings
	if err := json.Unmarshal([]byte(out), &settings); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if settings.CronIntervalSeconds != env.cfg.Settings.CronIntervalSeconds || settings.CLITool != "claude" {
		t.Fatalf("rejected update changed settings: %+v", settings)
	}
}
