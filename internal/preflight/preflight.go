package preflight

import (
	"stagehand/internal/config"
	"stagehand/internal/store"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the readiness checks for cfg and the persisted settings.
// The repository folder and tool checks only run while the worker is enabled.
func RunAll(cfg *config.Config, settings store.Settings) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if !settings.WorkerEnabled {
		return results
	}
	results = append(results,
		CheckReadableDirectory("Repository folder", settings.BaseReposFolder),
		CheckTool(settings.CLITool),
	)
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
