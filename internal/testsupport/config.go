package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"stagehand/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Settings.BaseReposFolder = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithReposFolder creates a repos directory under the test root, seeds it
// into the settings defaults, and creates one subdirectory per name.
func WithReposFolder(repos ...string) ConfigOption {
	return func(b *configBuilder) {
		root := filepath.Join(b.baseDir, "repos")
		for _, name := range append([]string{""}, repos...) {
			if err := os.MkdirAll(filepath.Join(root, name), 0o755); err != nil {
				b.t.Fatalf("mkdir repo %q: %v", name, err)
			}
		}
		b.cfg.Settings.BaseReposFolder = root
	}
}

// WithWorkerEnabled seeds the worker switch.
func WithWorkerEnabled(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Settings.WorkerEnabled = enabled
	}
}

// WithExecution overrides the run timeout and grace period. Zero values keep
// the defaults.
func WithExecution(timeoutMinutes, graceSeconds int) ConfigOption {
	return func(b *configBuilder) {
		if timeoutMinutes > 0 {
			b.cfg.Execution.TimeoutMinutes = timeoutMinutes
		}
		if graceSeconds > 0 {
			b.cfg.Execution.GraceSeconds = graceSeconds
		}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the claude binary is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"claude"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
