package config

import (
	"errors"
	"fmt"
	"strings"

	"stagehand/internal/clitool"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		errs = append(errs, errors.New("paths.data_dir must be set"))
	}
	if c.Workflow.WorkerPollInterval <= 0 {
		errs = append(errs, errors.New("workflow.worker_poll_interval must be positive"))
	}
	if c.Workflow.SchedulerMinInterval <= 0 {
		errs = append(errs, errors.New("workflow.scheduler_min_interval must be positive"))
	}
	if c.Execution.TimeoutMinutes <= 0 {
		errs = append(errs, errors.New("execution.timeout_minutes must be positive"))
	}
	if c.Execution.GraceSeconds <= 0 {
		errs = append(errs, errors.New("execution.grace_seconds must be positive"))
	}
	if c.Execution.ErrorMessageLimit < 64 {
		errs = append(errs, errors.New("execution.error_message_limit must be at least 64"))
	}
	if c.Execution.ErrorMessageLimit > maxErrorMessageLimit {
		errs = append(errs, fmt.Errorf("execution.error_message_limit must be at most %d", maxErrorMessageLimit))
	}
	if err := ValidateCronInterval(c.Settings.CronIntervalSeconds); err != nil {
		errs = append(errs, fmt.Errorf("settings.cron_interval_seconds: %w", err))
	}
	if err := clitool.Validate(c.Settings.CLITool); err != nil {
		errs = append(errs, fmt.Errorf("settings.cli_tool: %w", err))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// ValidateCronInterval checks the scheduler interval bounds.
func ValidateCronInterval(seconds int) error {
	if seconds < MinCronIntervalSeconds || seconds > MaxCronIntervalSeconds {
		return fmt.Errorf("must be between %d and %d seconds, got %d", MinCronIntervalSeconds, MaxCronIntervalSeconds, seconds)
	}
	return nil
}
