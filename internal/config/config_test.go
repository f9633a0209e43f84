package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stagehand/internal/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.ExecutionTimeout() != 30*time.Minute || cfg.ExecutionGrace() != 5*time.Second {
		t.Fatalf("unexpected execution defaults: %v %v", cfg.ExecutionTimeout(), cfg.ExecutionGrace())
	}
	if cfg.WorkerPollDuration() != 5*time.Second || cfg.SchedulerFloor() != 10*time.Second {
		t.Fatalf("unexpected loop defaults: %v %v", cfg.WorkerPollDuration(), cfg.SchedulerFloor())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, path, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be reported missing")
	}
	if path != filepath.Join(home, ".config", "stagehand", "config.toml") {
		t.Fatalf("unexpected resolved path %q", path)
	}
	if cfg.Paths.DataDir != filepath.Join(home, ".local", "share", "stagehand") {
		t.Fatalf("expected expanded data dir, got %q", cfg.Paths.DataDir)
	}
	if cfg.DatabasePath() != filepath.Join(cfg.Paths.DataDir, "stagehand.db") {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath())
	}
}

func TestLoadParsesFileAndNormalizes(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := t.TempDir()
	path := filepath.Join(dir, "stagehand.toml")
	content := `
[paths]
data_dir = "~/data"

[execution]
timeout_minutes = 5

[settings]
cron_interval_seconds = 120
base_repos_folder = "~/code"
cli_tool = " Codex "
worker_enabled = true

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution %q %v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(home, "data") {
		t.Fatalf("unexpected data dir %q", cfg.Paths.DataDir)
	}
	if cfg.Settings.BaseReposFolder != filepath.Join(home, "code") {
		t.Fatalf("unexpected base folder %q", cfg.Settings.BaseReposFolder)
	}
	if cfg.Settings.CLITool != "codex" || !cfg.Settings.WorkerEnabled || cfg.Settings.CronIntervalSeconds != 120 {
		t.Fatalf("unexpected settings %#v", cfg.Settings)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging %#v", cfg.Logging)
	}
	if cfg.Execution.TimeoutMinutes != 5 || cfg.Execution.GraceSeconds != 5 {
		t.Fatalf("unexpected execution %#v", cfg.Execution)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	tests := map[string]string{
		"cron too small":          "[settings]\ncron_interval_seconds = 5\n",
		"cron too large":          "[settings]\ncron_interval_seconds = 7200\n",
		"unknown tool":            "[settings]\ncli_tool = \"bash\"\n",
		"bad level":               "[logging]\nlevel = \"loud\"\n",
		"bad toml":                "[settings\n",
		"message limit too small": "[execution]\nerror_message_limit = 10\n",
		"message limit too large": "[execution]\nerror_message_limit = 100000\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, _, _, err := config.Load(path); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestLoadEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("STAGEHAND_TEST_FROM_FILE=file\nSTAGEHAND_TEST_EXISTING=file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STAGEHAND_TEST_EXISTING", "env")
	t.Setenv("STAGEHAND_TEST_FROM_FILE", "")
	os.Unsetenv("STAGEHAND_TEST_FROM_FILE")

	if _, _, _, err := config.Load(filepath.Join(dir, "missing.toml")); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := os.Getenv("STAGEHAND_TEST_FROM_FILE"); got != "file" {
		t.Fatalf("expected value from .env, got %q", got)
	}
	if got := os.Getenv("STAGEHAND_TEST_EXISTING"); got != "env" {
		t.Fatalf("expected environment to win, got %q", got)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "cron_interval_seconds") {
		t.Fatalf("sample missing settings section: %s", data)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("sample config should load: exists=%v err=%v", exists, err)
	}
}
