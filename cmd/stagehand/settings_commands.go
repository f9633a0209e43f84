package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"stagehand/internal/config"
	"stagehand/internal/store"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change runtime settings stored in the database",
	}
	settingsCmd.AddCommand(newSettingsShowCommand(ctx))
	settingsCmd.AddCommand(newSettingsSetCommand(ctx))
	return settingsCmd
}

func newSettingsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				settings, err := st.GetSettings(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, settings)
				}
				printSettings(cmd, settings)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newSettingsSetCommand(ctx *commandContext) *cobra.Command {
	var (
		cronInterval  int
		reposFolder   string
		cliTool       string
		workerEnabled bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change one or more settings",
		Long: "Changes only the flags that are given. Invalid values are rejected and\n" +
			"nothing is written. A running daemon picks up changes on its next cycle.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var update store.SettingsUpdate
			flags := cmd.Flags()
			if flags.Changed("cron-interval") {
				update.CronIntervalSeconds = &cronInterval
			}
			if flags.Changed("repos-folder") {
				update.BaseReposFolder = &reposFolder
			}
			if flags.Changed("tool") {
				update.CLITool = &cliTool
			}
			if flags.Changed("worker-enabled") {
				update.WorkerEnabled = &workerEnabled
			}
			if update == (store.SettingsUpdate{}) {
				return errors.New("no settings given; see --help")
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				settings, err := st.UpdateSettings(cmd.Context(), update)
				if err != nil {
					return err
				}
				printSettings(cmd, settings)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&cronInterval, "cron-interval", 0,
		fmt.Sprintf("Scan interval in seconds (%d-%d)", config.MinCronIntervalSeconds, config.MaxCronIntervalSeconds))
	cmd.Flags().StringVar(&reposFolder, "repos-folder", "", "Base folder containing repository checkouts")
	cmd.Flags().StringVar(&cliTool, "tool", "", "CLI tool to run for new queue items")
	cmd.Flags().BoolVar(&workerEnabled, "worker-enabled", false, "Enable the scheduler and worker")
	return cmd
}

func printSettings(cmd *cobra.Command, settings store.Settings) {
	fmt.Fprint(cmd.OutOrStdout(), renderKeyValues([][]string{
		{"Scan interval (s)", strconv.Itoa(settings.CronIntervalSeconds)},
		{"Repository folder", dash(settings.BaseReposFolder)},
		{"CLI tool", settings.CLITool},
		{"Worker enabled", yesNo(settings.WorkerEnabled)},
		{"Updated", formatTime(settings.UpdatedAt)},
	}))
}
