package clitool

import (
	"slices"
	"strings"
	"testing"
)

func TestAllowList(t *testing.T) {
	if got := IDs(); !slices.Equal(got, []string{"claude", "codex", "gemini"}) {
		t.Fatalf("unexpected ids %v", got)
	}
	for _, bad := range []string{"", "bash", "Claude", "claude; rm -rf /", "../claude"} {
		if Allowed(bad) {
			t.Fatalf("expected %q to be rejected", bad)
		}
		if err := Validate(bad); err == nil || !strings.Contains(err.Error(), "allowed: claude, codex, gemini") {
			t.Fatalf("expected allow-list error for %q, got %v", bad, err)
		}
	}
}

func TestArgsCarryHostileInputAsSingleElement(t *testing.T) {
	feature := `login"; rm -rf / #`
	repo := "api $(whoami)"
	for _, tool := range All() {
		args := tool.Args(repo, feature)
		matches := 0
		for _, arg := range args {
			if strings.Contains(arg, "rm -rf") {
				matches++
				if !strings.Contains(arg, "whoami") {
					t.Fatalf("%s: repo and feature should share the prompt element: %q", tool.ID, arg)
				}
			}
		}
		if matches != 1 {
			t.Fatalf("%s: expected hostile input in exactly one argument, got %d in %q", tool.ID, matches, args)
		}
	}
}

func TestLookup(t *testing.T) {
	tool, ok := Lookup("codex")
	if !ok || tool.Binary != "codex" {
		t.Fatalf("unexpected lookup result %#v %v", tool, ok)
	}
	if args := tool.Args("api", "login"); args[0] != "exec" {
		t.Fatalf("unexpected args %q", args)
	}
}
