package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stagehand/internal/config"
	"stagehand/internal/scheduler"
	"stagehand/internal/store"
	"stagehand/internal/worker"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one scheduler scan and enqueue every ready feature",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				created, err := scheduler.New(cfg, st, logger).Scan(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %d feature(s)\n", created)
				return err
			})
		},
	}
}

func newWorkCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Process pending queue items in the foreground",
		Long: "Claims pending items one at a time and runs the configured tool for each.\n" +
			"Stops when the queue has no pending items, or after one item with --once.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				settings, err := st.GetSettings(cmd.Context())
				if err != nil {
					return err
				}
				if !settings.WorkerEnabled {
					return fmt.Errorf("worker is disabled; enable it with `stagehand settings set --worker-enabled=true`")
				}

				w := worker.New(cfg, st, logger)
				out := cmd.OutOrStdout()
				processed := 0
				for {
					ok, err := w.Tick(cmd.Context())
					if err != nil {
						return err
					}
					if !ok {
						break
					}
					processed++
					if once {
						break
					}
				}
				fmt.Fprintf(out, "Processed %d item(s)\n", processed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Process at most one item")
	return cmd
}
