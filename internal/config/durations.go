package config

import "time"

// WorkerPollDuration is the delay between worker claim attempts.
func (c *Config) WorkerPollDuration() time.Duration {
	return time.Duration(c.Workflow.WorkerPollInterval) * time.Second
}

// SchedulerFloor is the lower bound applied to the stored scan interval.
func (c *Config) SchedulerFloor() time.Duration {
	return time.Duration(c.Workflow.SchedulerMinInterval) * time.Second
}

// ErrorRetryDuration is the back-off after a loop-level error.
func (c *Config) ErrorRetryDuration() time.Duration {
	return time.Duration(c.Workflow.ErrorRetryInterval) * time.Second
}

// ExecutionTimeout is the hard wall-clock limit for one tool run.
func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.Execution.TimeoutMinutes) * time.Minute
}

// ExecutionGrace is the delay between SIGTERM and SIGKILL.
func (c *Config) ExecutionGrace() time.Duration {
	return time.Duration(c.Execution.GraceSeconds) * time.Second
}
