package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"stagehand/internal/config"
	"stagehand/internal/services"
	"stagehand/internal/store"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the execution queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueEnqueueCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueuePruneCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				stats, err := st.QueueStats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				pal := newPalette(out)
				rows := make([][]string, 0, len(stats))
				for _, status := range store.QueueStatuses() {
					rows = append(rows, []string{pal.status(string(status)), strconv.Itoa(stats[status])})
				}
				fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]store.QueueStatus, 0, len(listStatuses))
			for _, value := range listStatuses {
				status, err := store.ParseQueueStatus(strings.ToLower(strings.TrimSpace(value)))
				if err != nil {
					return err
				}
				statuses = append(statuses, status)
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				items, err := st.ListQueue(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if jsonOutput {
					if items == nil {
						items = []*store.QueueItem{}
					}
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				pal := newPalette(out)
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						item.RepoName,
						item.FeatureSlug,
						pal.status(string(item.Status)),
						item.CLITool,
						formatTime(item.EnqueuedAt),
						strconv.Itoa(item.RetryCount),
						firstLine(item.ErrorMessage),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Repo", "Feature", "Status", "Tool", "Enqueued", "Retries", "Error"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by queue status (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <itemID>",
		Short: "Show one queue item with its full error message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				item, err := st.GetQueueItem(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("item %d not found", ids[0])
				}
				if jsonOutput {
					return writeJSON(cmd, item)
				}
				out := cmd.OutOrStdout()
				pal := newPalette(out)
				fmt.Fprint(out, renderKeyValues([][]string{
					{"ID", strconv.FormatInt(item.ID, 10)},
					{"Repository", item.RepoName},
					{"Feature", item.FeatureSlug},
					{"Status", pal.status(string(item.Status))},
					{"CLI tool", item.CLITool},
					{"Enqueued", formatTime(item.EnqueuedAt)},
					{"Started", formatTimePtr(item.StartedAt)},
					{"Completed", formatTimePtr(item.CompletedAt)},
					{"Retries", strconv.Itoa(item.RetryCount)},
					{"Worker", dash(item.WorkerID)},
				}))
				if item.ErrorMessage != "" {
					fmt.Fprintf(out, "\nError:\n%s\n", item.ErrorMessage)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newQueueEnqueueCommand(ctx *commandContext) *cobra.Command {
	var tool string

	cmd := &cobra.Command{
		Use:   "enqueue <repo> <feature>",
		Short: "Queue a feature for execution regardless of task status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				cliTool := strings.ToLower(strings.TrimSpace(tool))
				if cliTool == "" {
					settings, err := st.GetSettings(cmd.Context())
					if err != nil {
						return err
					}
					cliTool = settings.CLITool
				}
				res, err := st.Enqueue(cmd.Context(), args[0], args[1], cliTool)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if res.AlreadyQueued {
					fmt.Fprintf(out, "Feature %s/%s already queued as item %d\n", args[0], args[1], res.ID)
					return nil
				}
				fmt.Fprintf(out, "Queued %s/%s as item %d (%s)\n", args[0], args[1], res.ID, cliTool)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tool, "tool", "", "CLI tool (defaults to the configured tool)")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	var resetRetries bool

	cmd := &cobra.Command{
		Use:   "retry <itemID...>",
		Short: "Return failed queue items to pending",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				out := cmd.OutOrStdout()
				var failures int
				for _, id := range ids {
					err := st.Requeue(cmd.Context(), id, resetRetries)
					switch {
					case err == nil:
						fmt.Fprintf(out, "Item %d reset for retry\n", id)
					case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrConflict):
						failures++
						fmt.Fprintf(out, "Item %d not retried: %s\n", id, services.Details(err))
					default:
						return err
					}
				}
				if failures > 0 {
					return fmt.Errorf("%d of %d item(s) could not be retried", failures, len(ids))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&resetRetries, "reset-retries", false, "Reset the retry counter")
	return cmd
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <itemID...>",
		Short: "Remove pending queue items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				out := cmd.OutOrStdout()
				var failures int
				for _, id := range ids {
					err := st.RemovePending(cmd.Context(), id)
					switch {
					case err == nil:
						fmt.Fprintf(out, "Item %d removed\n", id)
					case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrConflict):
						failures++
						fmt.Fprintf(out, "Item %d not removed: %s\n", id, services.Details(err))
					default:
						return err
					}
				}
				if failures > 0 {
					return fmt.Errorf("%d of %d item(s) could not be removed", failures, len(ids))
				}
				return nil
			})
		},
	}
}

func newQueuePruneCommand(ctx *commandContext) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete completed and failed items older than --days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				removed, err := st.Prune(cmd.Context(), days)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d item(s)\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Age in days of finished items to delete")
	return cmd
}
