package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stagehand/internal/testsupport"
)

func TestRunWritesPIDAndStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg, Options{LogLevel: "error", LogFile: "test.log"})
	}()

	deadline := time.Now().Add(5 * time.Second)
	var pid int
	for time.Now().Before(deadline) {
		var err error
		pid, err = ReadPID(cfg)
		if err == nil && pid != 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if pid != os.Getpid() {
		t.Fatalf("expected pid file with %d, got %d", os.Getpid(), pid)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if pid, err := ReadPID(cfg); err != nil || pid != 0 {
		t.Fatalf("expected pid file removed, got %d, %v", pid, err)
	}
	if _, err := os.Lstat(filepath.Join(cfg.Paths.LogDir, "stagehand.log")); err != nil {
		t.Fatalf("expected log pointer: %v", err)
	}
	if _, err := os.Stat(cfg.DatabasePath()); err != nil {
		t.Fatalf("expected database file: %v", err)
	}
}

func TestReadPIDRejectsGarbage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.DataDir, "stagehand.pid"), "not-a-pid\n")
	if _, err := ReadPID(cfg); err == nil {
		t.Fatal("expected parse error")
	}
}
