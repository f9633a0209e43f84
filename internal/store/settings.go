package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"stagehand/internal/clitool"
	"stagehand/internal/config"
	"stagehand/internal/services"
)

// seedSettings writes the configured defaults into a fresh store. An existing
// row is left alone.
func (s *Store) seedSettings(ctx context.Context, defaults config.Settings) error {
	_, err := s.execWithRetry(ctx,
		`INSERT OR IGNORE INTO settings (id, cron_interval_seconds, base_repos_folder, cli_tool, worker_enabled, updated_at)
         VALUES (1, ?, ?, ?, ?, ?)`,
		defaults.CronIntervalSeconds, defaults.BaseReposFolder, defaults.CLITool,
		boolToInt(defaults.WorkerEnabled), s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	return nil
}

// GetSettings reads the settings row.
func (s *Store) GetSettings(ctx context.Context) (Settings, error) {
	var (
		settings   Settings
		enabled    int
		updatedRaw string
	)
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT cron_interval_seconds, base_repos_folder, cli_tool, worker_enabled, updated_at
         FROM settings WHERE id = 1`,
	).Scan(&settings.CronIntervalSeconds, &settings.BaseReposFolder, &settings.CLITool, &enabled, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, services.Wrap(services.ErrConfiguration, "store", "get settings", "settings row is missing", nil)
	}
	if err != nil {
		return Settings{}, fmt.Errorf("get settings: %w", err)
	}
	settings.WorkerEnabled = enabled != 0
	if t, err := parseTimeString(updatedRaw); err == nil {
		settings.UpdatedAt = t
	}
	return settings, nil
}

// UpdateSettings validates and applies a partial update, returning the
// resulting settings. Nothing is written when any field is invalid.
func (s *Store) UpdateSettings(ctx context.Context, update SettingsUpdate) (Settings, error) {
	var problems []string
	if update.CronIntervalSeconds != nil {
		if err := config.ValidateCronInterval(*update.CronIntervalSeconds); err != nil {
			problems = append(problems, err.Error())
		}
	}
	var tool any
	if update.CLITool != nil {
		normalized := strings.ToLower(strings.TrimSpace(*update.CLITool))
		if err := clitool.Validate(normalized); err != nil {
			problems = append(problems, err.Error())
		}
		tool = normalized
	}
	var folder any
	if update.BaseReposFolder != nil {
		trimmed := strings.TrimSpace(*update.BaseReposFolder)
		if trimmed != "" {
			expanded, err := config.ExpandPath(trimmed)
			if err != nil {
				problems = append(problems, err.Error())
			}
			trimmed = expanded
		}
		folder = trimmed
	}
	if len(problems) > 0 {
		return Settings{}, services.Wrap(services.ErrValidation, "store", "update settings", strings.Join(problems, "; "), nil)
	}

	var cron, enabled any
	if update.CronIntervalSeconds != nil {
		cron = *update.CronIntervalSeconds
	}
	if update.WorkerEnabled != nil {
		enabled = boolToInt(*update.WorkerEnabled)
	}

	if _, err := s.execWithRetry(ctx,
		`UPDATE settings SET
             cron_interval_seconds = COALESCE(?, cron_interval_seconds),
             base_repos_folder = COALESCE(?, base_repos_folder),
             cli_tool = COALESCE(?, cli_tool),
             worker_enabled = COALESCE(?, worker_enabled),
             updated_at = ?
         WHERE id = 1`,
		cron, folder, tool, enabled, s.timestamp(),
	); err != nil {
		return Settings{}, fmt.Errorf("update settings: %w", err)
	}
	return s.GetSettings(ctx)
}
