package config

const (
	defaultDataDir               = "~/.local/share/stagehand"
	defaultLogDir                = "~/.local/share/stagehand/logs"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultWorkerPollInterval    = 5
	defaultSchedulerMinInterval  = 10
	defaultErrorRetryInterval    = 10
	defaultExecutionTimeoutMins  = 30
	defaultExecutionGraceSeconds = 5
	defaultStderrLimitBytes      = 8 * 1024
	defaultErrorMessageLimit     = 4096
	maxErrorMessageLimit         = 4096
	defaultCronIntervalSeconds   = 60
	defaultCLITool               = "claude"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Workflow: Workflow{
			WorkerPollInterval:   defaultWorkerPollInterval,
			SchedulerMinInterval: defaultSchedulerMinInterval,
			ErrorRetryInterval:   defaultErrorRetryInterval,
		},
		Execution: Execution{
			TimeoutMinutes:    defaultExecutionTimeoutMins,
			GraceSeconds:      defaultExecutionGraceSeconds,
			StderrLimitBytes:  defaultStderrLimitBytes,
			ErrorMessageLimit: defaultErrorMessageLimit,
		},
		Settings: Settings{
			CronIntervalSeconds: defaultCronIntervalSeconds,
			CLITool:             defaultCLITool,
			WorkerEnabled:       false,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
