package main

import (
	"fmt"
	"strconv"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"stagehand/internal/config"
	"stagehand/internal/daemonrun"
	"stagehand/internal/store"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduler and worker in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{})
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, settings, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				running, pid, err := daemonState(cfg)
				if err != nil {
					return err
				}
				settings, err := st.GetSettings(cmd.Context())
				if err != nil {
					return err
				}
				stats, err := st.QueueStats(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					counts := make(map[string]int, len(stats))
					for status, n := range stats {
						counts[string(status)] = n
					}
					return writeJSON(cmd, map[string]any{
						"daemonRunning": running,
						"pid":           pid,
						"settings":      settings,
						"queue":         counts,
						"database":      st.Path(),
					})
				}

				out := cmd.OutOrStdout()
				pal := newPalette(out)
				daemonLine := "not running"
				if running {
					daemonLine = "running"
					if pid > 0 {
						daemonLine += " (pid " + strconv.Itoa(pid) + ")"
					}
				}
				rows := [][]string{
					{"Daemon", daemonLine},
					{"Worker enabled", yesNo(settings.WorkerEnabled)},
					{"CLI tool", settings.CLITool},
					{"Repository folder", dash(settings.BaseReposFolder)},
					{"Scan interval", settings.CronInterval().String()},
					{"Database", st.Path()},
				}
				for _, status := range store.QueueStatuses() {
					rows = append(rows, []string{"Queue " + pal.status(string(status)), strconv.Itoa(stats[status])})
				}
				fmt.Fprint(out, renderKeyValues(rows))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// daemonState probes the single-instance lock. A held lock means a daemon is
// running; the pid file supplies its pid when present.
func daemonState(cfg *config.Config) (bool, int, error) {
	lock := flock.New(cfg.LockPath())
	acquired, err := lock.TryLock()
	if err != nil {
		return false, 0, fmt.Errorf("probe daemon lock: %w", err)
	}
	if acquired {
		_ = lock.Unlock()
		return false, 0, nil
	}
	pid, err := daemonrun.ReadPID(cfg)
	if err != nil {
		return true, 0, nil
	}
	if pid > 0 && syscall.Kill(pid, 0) != nil {
		pid = 0
	}
	return true, pid, nil
}
