package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveWithin(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	mustMkdir(t, filepath.Join(root, "api"))
	mustMkdir(t, filepath.Join(root, "nested", "svc"))
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "api"), filepath.Join(root, "alias")); err != nil {
		t.Fatal(err)
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		repo    string
		want    string
		wantErr error
	}{
		{name: "plain", repo: "api", want: filepath.Join(realRoot, "api")},
		{name: "nested", repo: "nested/svc", want: filepath.Join(realRoot, "nested", "svc")},
		{name: "internal symlink", repo: "alias", want: filepath.Join(realRoot, "api")},
		{name: "parent traversal", repo: "../etc", wantErr: ErrOutsideRoot},
		{name: "deep traversal", repo: "api/../../x", wantErr: ErrOutsideRoot},
		{name: "root itself", repo: ".", wantErr: ErrOutsideRoot},
		{name: "absolute", repo: "/etc", wantErr: ErrOutsideRoot},
		{name: "empty", repo: "", wantErr: ErrOutsideRoot},
		{name: "symlink escape", repo: "escape", wantErr: ErrOutsideRoot},
		{name: "missing", repo: "ghost", wantErr: ErrMissing},
		{name: "file", repo: "notes.txt", wantErr: ErrNotDirectory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWithin(root, tt.repo)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v (path %q)", tt.wantErr, err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveWithinRequiresRoot(t *testing.T) {
	if _, err := ResolveWithin("  ", "api"); err == nil {
		t.Fatal("expected error for blank root")
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
}
