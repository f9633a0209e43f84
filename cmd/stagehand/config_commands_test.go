package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigInitShowAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.run(t, "config", "validate")
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	out = env.run(t, "config", "show")
	requireContains(t, out, "data_dir")
	requireContains(t, out, env.cfg.Paths.DataDir)

	target := filepath.Join(t.TempDir(), "config.toml")
	out = env.run(t, "config", "init", "--path", target)
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
	env.run(t, "config", "init", "--path", target, "--overwrite")
}

func TestConfigRejectsInvalidFile(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.WriteFile(env.configPath, []byte("[settings]\ncli_tool = \"bash\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err == nil {
		t.Fatal("expected validation failure for a tool outside the allow-list")
	}
	requireContains(t, err.Error(), "not allowed")
}
