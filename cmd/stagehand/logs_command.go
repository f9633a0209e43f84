package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"stagehand/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			path, err := logs.Current(cfg.Paths.LogDir)
			if err != nil {
				if errors.Is(err, logs.ErrNoLog) {
					fmt.Fprintln(out, "No daemon log yet")
					return nil
				}
				return err
			}
			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), cfg.Paths.LogDir, out, logs.FollowOptions{Offset: offset})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new lines")
	return cmd
}
