package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeExecution()
	if err := c.normalizeSettings(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.WorkerPollInterval <= 0 {
		c.Workflow.WorkerPollInterval = defaultWorkerPollInterval
	}
	if c.Workflow.SchedulerMinInterval <= 0 {
		c.Workflow.SchedulerMinInterval = defaultSchedulerMinInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
}

func (c *Config) normalizeExecution() {
	if c.Execution.TimeoutMinutes <= 0 {
		c.Execution.TimeoutMinutes = defaultExecutionTimeoutMins
	}
	if c.Execution.GraceSeconds <= 0 {
		c.Execution.GraceSeconds = defaultExecutionGraceSeconds
	}
	if c.Execution.StderrLimitBytes <= 0 {
		c.Execution.StderrLimitBytes = defaultStderrLimitBytes
	}
	if c.Execution.ErrorMessageLimit <= 0 {
		c.Execution.ErrorMessageLimit = defaultErrorMessageLimit
	}
}

func (c *Config) normalizeSettings() error {
	c.Settings.CLITool = strings.ToLower(strings.TrimSpace(c.Settings.CLITool))
	if c.Settings.CLITool == "" {
		c.Settings.CLITool = defaultCLITool
	}
	if c.Settings.CronIntervalSeconds == 0 {
		c.Settings.CronIntervalSeconds = defaultCronIntervalSeconds
	}
	if strings.TrimSpace(c.Settings.BaseReposFolder) != "" {
		expanded, err := expandPath(strings.TrimSpace(c.Settings.BaseReposFolder))
		if err != nil {
			return fmt.Errorf("settings.base_repos_folder: %w", err)
		}
		c.Settings.BaseReposFolder = expanded
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
