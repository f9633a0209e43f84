package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stagehand/internal/config"
	"stagehand/internal/logging"
	"stagehand/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg, "stagehand.log")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon starting")

	if got := readLog(t, filepath.Join(cfg.Paths.LogDir, "stagehand.log")); !strings.Contains(got, "daemon starting") {
		t.Fatalf("expected message in log file, got %q", got)
	}
}

func TestConsoleLoggerFormatsComponentAndItem(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	worker := logging.NewComponentLogger(logger, "queue-worker")
	worker.Info("claimed", logging.Int64(logging.FieldItemID, 7), logging.String(logging.FieldRepo, "api"))

	got := readLog(t, logPath)
	for _, fragment := range []string{"INFO", "queue-worker: ", "item #7 claimed", "repo=api"} {
		if !strings.Contains(got, fragment) {
			t.Fatalf("expected %q in %q", fragment, got)
		}
	}
	if strings.Contains(got, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", got)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("message with caller")

	if got := readLog(t, logPath); !strings.Contains(got, "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", got)
	}
}

func TestJSONLoggerKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("stale item", logging.String(logging.FieldFeature, "login"))

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if entry["level"] != "warn" || entry["msg"] != "stale item" || entry["feature"] != "login" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %#v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "scan failed", "scheduler_scan_failed",
		logging.Error(errors.New("db locked")),
		logging.String(logging.FieldErrorHint, "retry later"),
	)

	got := readLog(t, logPath)
	for _, fragment := range []string{"event_type=scheduler_scan_failed", `error_hint="retry later"`, "impact=", `error="db locked"`} {
		if !strings.Contains(got, fragment) {
			t.Fatalf("expected %q in %q", fragment, got)
		}
	}
}

func TestWithContextAddsFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithWorkerID(services.WithItemID(context.Background(), 3), "99-deadbeef")
	logging.WithContext(ctx, logger).Info("running")

	got := readLog(t, logPath)
	if !strings.Contains(got, `"item_id":3`) || !strings.Contains(got, `"worker_id":"99-deadbeef"`) {
		t.Fatalf("expected context fields, got %q", got)
	}
}

func TestNopLoggerIsSilent(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 8) {
		t.Fatal("nop logger should not be enabled")
	}
	logging.WarnWithContext(nil, "ignored", "noop")
}
