package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"stagehand/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "queue-worker", "run", "tool exited", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"queue-worker", "run", "tool exited"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrValidation, "workflow", "review", "wrong stakeholder", nil), "validation"},
		{fmt.Errorf("outer: %w", services.Wrap(services.ErrConflict, "store", "update", "stale", nil)), "conflict"},
		{services.Wrap(services.ErrSecurityPolicy, "worker", "validate", "escape", nil), "security_policy"},
		{services.Wrap(services.ErrTimeout, "worker", "run", "deadline", nil), "timeout"},
		{errors.New("plain"), "transient"},
	}
	for _, tt := range tests {
		if got := services.Category(tt.err); got != tt.want {
			t.Errorf("Category(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestDetailsDropsMarker(t *testing.T) {
	err := services.Wrap(services.ErrConflict, "store", "requeue", "queue item 4 is running, expected failed", nil)
	if got := services.Details(err); got != "store: requeue: queue item 4 is running, expected failed" {
		t.Fatalf("unexpected details: %q", got)
	}
	wrapped := fmt.Errorf("outer: %w", err)
	if got := services.Details(wrapped); got != wrapped.Error() {
		t.Fatalf("prefix not at the start should be kept: %q", got)
	}
	if services.Details(nil) != "" {
		t.Fatal("nil error should have no details")
	}
}
