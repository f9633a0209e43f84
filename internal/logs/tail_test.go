package logs_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"stagehand/internal/logs"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func point(t *testing.T, dir, target string) {
	t.Helper()
	pointer := filepath.Join(dir, logs.PointerName)
	_ = os.Remove(pointer)
	if err := os.Symlink(target, pointer); err != nil {
		t.Fatalf("symlink: %v", err)
	}
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func waitFor(t *testing.T, buf *syncBuffer, substr string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), substr) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in %q", substr, buf.String())
}

func TestCurrentResolvesPointer(t *testing.T) {
	dir := t.TempDir()
	if _, err := logs.Current(dir); !errors.Is(err, logs.ErrNoLog) {
		t.Fatalf("expected ErrNoLog, got %v", err)
	}
	target := writeLog(t, dir, "stagehand-1.log", "x\n")
	point(t, dir, target)
	got, err := logs.Current(dir)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	want, _ := filepath.EvalSymlinks(target)
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestLastLines(t *testing.T) {
	path := writeLog(t, t.TempDir(), "a.log", "a\nb\nc\npartial")

	lines, offset, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != int64(len("a\nb\nc\n")) {
		t.Fatalf("expected offset before the partial line, got %d", offset)
	}

	lines, _, err = logs.Last(path, 10)
	if err != nil || len(lines) != 3 {
		t.Fatalf("expected all complete lines, got %#v (%v)", lines, err)
	}

	lines, offset, err = logs.Last(path, 0)
	if err != nil || len(lines) != 0 || offset != int64(len("a\nb\nc\npartial")) {
		t.Fatalf("unexpected zero-limit result: %#v %d %v", lines, offset, err)
	}
}

func TestFollowStreamsAppendsAndRestarts(t *testing.T) {
	dir := t.TempDir()
	first := writeLog(t, dir, "stagehand-1.log", "old\n")
	point(t, dir, first)
	_, offset, err := logs.Last(first, 0)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	buf := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, dir, buf, logs.FollowOptions{Offset: offset, Poll: 10 * time.Millisecond})
	}()

	appendLog(t, first, "one\n")
	waitFor(t, buf, "one")

	second := writeLog(t, dir, "stagehand-2.log", "two\n")
	point(t, dir, second)
	waitFor(t, buf, "two")

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if strings.Contains(buf.String(), "old") {
		t.Fatalf("lines before the offset were replayed: %q", buf.String())
	}
}
