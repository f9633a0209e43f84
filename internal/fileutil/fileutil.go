package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrOutsideRoot reports a name that resolves to the root itself or escapes it.
	ErrOutsideRoot = errors.New("path escapes root")
	// ErrMissing reports a contained path that does not exist.
	ErrMissing = errors.New("path does not exist")
	// ErrNotDirectory reports a contained path that is not a directory.
	ErrNotDirectory = errors.New("path is not a directory")
)

// ResolveWithin joins name onto root and returns the symlink-resolved
// directory. The result must lie strictly inside root both lexically and
// after symlinks are evaluated, and must be an existing directory.
func ResolveWithin(root, name string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return "", fmt.Errorf("resolve %q: root not configured", name)
	}
	absRoot, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", root, err)
	}
	if name == "" || filepath.IsAbs(name) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, name)
	}

	candidate := filepath.Join(absRoot, name)
	if !strictlyInside(absRoot, candidate) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, name)
	}

	if _, err := os.Lstat(candidate); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrMissing, candidate)
		}
		return "", fmt.Errorf("stat %s: %w", candidate, err)
	}

	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolve root %s: %w", absRoot, err)
	}
	realCandidate, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrMissing, candidate)
		}
		return "", fmt.Errorf("resolve %s: %w", candidate, err)
	}
	if !strictlyInside(realRoot, realCandidate) {
		return "", fmt.Errorf("%w: %q resolves to %s", ErrOutsideRoot, name, realCandidate)
	}

	info, err := os.Stat(realCandidate)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", realCandidate, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, realCandidate)
	}
	return realCandidate, nil
}

func strictlyInside(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}
