package store_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"stagehand/internal/services"
	"stagehand/internal/store"
	"stagehand/internal/testsupport"
)

func openRawDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSettingsSeededFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithReposFolder(), testsupport.WithWorkerEnabled(true))
	cfg.Settings.CronIntervalSeconds = 120
	st := testsupport.MustOpenStore(t, cfg)

	settings, err := st.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if settings.CronIntervalSeconds != 120 || !settings.WorkerEnabled || settings.CLITool != "claude" {
		t.Fatalf("unexpected seeded settings: %+v", settings)
	}
	if settings.BaseReposFolder != cfg.Settings.BaseReposFolder {
		t.Fatalf("expected base folder %q, got %q", cfg.Settings.BaseReposFolder, settings.BaseReposFolder)
	}
}

func TestSettingsSurviveReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	interval := 300
	if _, err := st.UpdateSettings(context.Background(), store.SettingsUpdate{CronIntervalSeconds: &interval}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	st.Close()

	reopened := testsupport.MustOpenStore(t, cfg)
	settings, err := reopened.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if settings.CronIntervalSeconds != 300 {
		t.Fatalf("seed overwrote stored settings: %+v", settings)
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	tooShort := 5
	tooLong := 7200
	badTool := "bash"
	for name, update := range map[string]store.SettingsUpdate{
		"short interval": {CronIntervalSeconds: &tooShort},
		"long interval":  {CronIntervalSeconds: &tooLong},
		"unknown tool":   {CLITool: &badTool},
	} {
		if _, err := st.UpdateSettings(ctx, update); !errors.Is(err, services.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}

	settings, err := st.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if settings.CronIntervalSeconds != 60 || settings.CLITool != "claude" {
		t.Fatalf("invalid updates must not be applied: %+v", settings)
	}
}

func TestUpdateSettingsPartial(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	folder := filepath.Join(t.TempDir(), "repos")
	tool := " Codex "
	enabled := true
	settings, err := st.UpdateSettings(ctx, store.SettingsUpdate{BaseReposFolder: &folder, CLITool: &tool, WorkerEnabled: &enabled})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if settings.BaseReposFolder != folder || settings.CLITool != "codex" || !settings.WorkerEnabled {
		t.Fatalf("unexpected settings: %+v", settings)
	}
	if settings.CronIntervalSeconds != 60 {
		t.Fatalf("untouched field changed: %+v", settings)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	st.Close()

	db := openRawDB(t, cfg.DatabasePath())
	if _, err := db.Exec(`UPDATE schema_version SET version = 99`); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := store.Open(cfg); !errors.Is(err, store.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestCheckHealth(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	health, err := st.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
	if len(health.MissingTables) != 0 || health.SchemaVersion != 1 {
		t.Fatalf("unexpected schema state: %+v", health)
	}
}
