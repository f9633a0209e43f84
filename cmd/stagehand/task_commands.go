package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"stagehand/internal/config"
	"stagehand/internal/store"
	"stagehand/internal/taskfile"
	"stagehand/internal/tasks"
	"stagehand/internal/workflow"
)

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Create, review, and advance feature tasks",
	}

	taskCmd.AddCommand(newTaskImportCommand(ctx))
	taskCmd.AddCommand(newTaskListCommand(ctx))
	taskCmd.AddCommand(newTaskShowCommand(ctx))
	taskCmd.AddCommand(newTaskReviewCommand(ctx))
	taskCmd.AddCommand(newTaskMoveCommand(ctx))
	taskCmd.AddCommand(newTaskDecideCommand(ctx))
	taskCmd.AddCommand(newTaskResetCommand(ctx))
	taskCmd.AddCommand(newTaskProgressCommand(ctx))

	return taskCmd
}

func refFromArgs(args []string) tasks.Ref {
	return tasks.Ref{Repo: args[0], Feature: args[1], ID: args[2]}
}

func newTaskImportCommand(ctx *commandContext) *cobra.Command {
	var skipExisting bool

	cmd := &cobra.Command{
		Use:   "import <manifest.yaml>",
		Short: "Create the tasks listed in a feature manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := taskfile.LoadFile(args[0])
			if err != nil {
				return err
			}
			return ctx.withTasks(func(svc *tasks.Service) error {
				result, err := svc.Import(cmd.Context(), manifest, skipExisting)
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Feature %s/%s: created %d, skipped %d\n",
					result.Repo, result.Feature, len(result.Created), len(result.Skipped))
				if len(result.Skipped) > 0 {
					fmt.Fprintf(out, "Skipped existing: %s\n", strings.Join(result.Skipped, ", "))
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Skip tasks whose id already exists instead of failing")
	return cmd
}

func newTaskListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list [repo [feature]]",
		Short: "List features, or the tasks of one feature",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 2 {
				return ctx.withTasks(func(svc *tasks.Service) error {
					list, err := svc.List(cmd.Context(), args[0], args[1])
					if err != nil {
						return err
					}
					if jsonOutput {
						if list == nil {
							list = []*workflow.Task{}
						}
						return writeJSON(cmd, list)
					}
					printTaskTable(cmd.OutOrStdout(), list)
					return nil
				})
			}
			repo := ""
			if len(args) == 1 {
				repo = args[0]
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				features, err := st.ListFeatures(cmd.Context(), repo)
				if err != nil {
					return err
				}
				states := make([]store.FeatureScanState, 0, len(features))
				for _, feature := range features {
					state, err := st.FeatureScanState(cmd.Context(), feature.RepoName, feature.Slug)
					if err != nil {
						return err
					}
					states = append(states, state)
				}
				if jsonOutput {
					type row struct {
						store.Feature
						Tasks  int  `json:"tasks"`
						Ready  int  `json:"ready"`
						Queued bool `json:"queued"`
					}
					rows := make([]row, len(features))
					for i, feature := range features {
						rows[i] = row{Feature: feature, Tasks: states[i].Total, Ready: states[i].Ready, Queued: states[i].Active}
					}
					return writeJSON(cmd, rows)
				}
				out := cmd.OutOrStdout()
				if len(features) == 0 {
					fmt.Fprintln(out, "No features")
					return nil
				}
				rows := make([][]string, 0, len(features))
				for i, feature := range features {
					rows = append(rows, []string{
						feature.RepoName,
						feature.Slug,
						dash(feature.Title),
						strconv.Itoa(states[i].Total),
						strconv.Itoa(states[i].Ready),
						yesNo(states[i].Active),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Repo", "Feature", "Title", "Tasks", "Ready", "Queued"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printTaskTable(out io.Writer, list []*workflow.Task) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No tasks")
		return
	}
	pal := newPalette(out)
	rows := make([][]string, 0, len(list))
	for _, task := range list {
		rows = append(rows, []string{
			strconv.Itoa(task.OrderOfExecution),
			task.ID,
			task.Title,
			pal.status(string(task.Status)),
			formatTime(task.UpdatedAt),
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"#", "ID", "Title", "Status", "Updated"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	))
}

func newTaskShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <repo> <feature> <taskID>",
		Short: "Show a task with its reviews and transition history",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withTasks(func(svc *tasks.Service) error {
				task, err := svc.Get(cmd.Context(), refFromArgs(args))
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, task)
				}
				printTask(cmd.OutOrStdout(), task, svc.Engine().ReviewProgress(task))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printTask(out io.Writer, task *workflow.Task, progress workflow.Progress) {
	pal := newPalette(out)
	fmt.Fprint(out, renderKeyValues([][]string{
		{"Task", task.ID},
		{"Feature", task.RepoName + "/" + task.FeatureSlug},
		{"Title", task.Title},
		{"Status", pal.status(string(task.Status))},
		{"Order", strconv.Itoa(task.OrderOfExecution)},
		{"Approved by", roleList(progress.Completed)},
		{"Awaiting", roleList(progress.Pending)},
	}))
	if desc := strings.TrimSpace(task.Description); desc != "" {
		fmt.Fprintf(out, "\n%s\n", desc)
	}

	if len(task.AcceptanceCriteria) > 0 {
		rows := make([][]string, 0, len(task.AcceptanceCriteria))
		for _, ac := range task.AcceptanceCriteria {
			rows = append(rows, []string{ac.ID, ac.Priority, ac.Text, yesNo(ac.Verified)})
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, renderTable([]string{"AC", "Priority", "Criterion", "Verified"}, rows, nil))
	}

	var reviewRows [][]string
	for _, role := range workflow.ReviewRoles {
		record, _ := task.Reviews.Record(role)
		if !record.Reviewed() {
			continue
		}
		reviewRows = append(reviewRows, []string{
			roleLabel(role),
			yesNo(record.Approved),
			formatTimePtr(record.ReviewedAt),
			dash(record.Notes),
		})
	}
	if len(reviewRows) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, renderTable([]string{"Reviewer", "Approved", "At", "Notes"}, reviewRows, nil))
	}

	if len(task.Transitions) > 0 {
		rows := make([][]string, 0, len(task.Transitions))
		for _, tr := range task.Transitions {
			rows = append(rows, []string{
				formatTime(tr.At),
				string(tr.From) + " -> " + string(tr.To),
				roleLabel(tr.Actor),
				dash(tr.Notes),
			})
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, renderTable([]string{"At", "Transition", "Actor", "Notes"}, rows, nil))
	}
}

func newTaskReviewCommand(ctx *commandContext) *cobra.Command {
	var role, decision, notes, fieldsPath string

	cmd := &cobra.Command{
		Use:   "review <repo> <feature> <taskID>",
		Short: "Record a stakeholder review decision",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := workflow.ParseRole(role)
			if err != nil {
				return err
			}
			d, err := workflow.ParseDecision(decision)
			if err != nil {
				return err
			}
			var fields workflow.ReviewFields
			if fieldsPath != "" {
				fields, err = taskfile.LoadReviewFields(r, fieldsPath)
				if err != nil {
					return err
				}
			}
			return ctx.withTasks(func(svc *tasks.Service) error {
				task, err := svc.Review(cmd.Context(), refFromArgs(args), r, d, notes, fields)
				if err != nil {
					return err
				}
				printTransitionResult(cmd.OutOrStdout(), task)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "Reviewing stakeholder (productDirector, architect, uiUxExpert, securityOfficer)")
	cmd.Flags().StringVar(&decision, "decision", "", "approve or reject")
	cmd.Flags().StringVar(&notes, "notes", "", "Review notes")
	cmd.Flags().StringVar(&fieldsPath, "fields", "", "YAML or JSON file with role-specific review fields")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func newTaskMoveCommand(ctx *commandContext) *cobra.Command {
	var target, actor, notes string

	cmd := &cobra.Command{
		Use:   "move <repo> <feature> <taskID>",
		Short: "Move a task through the development pipeline",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := workflow.ParseStatus(target)
			if err != nil {
				return err
			}
			role, err := workflow.ParseRole(actor)
			if err != nil {
				return err
			}
			return ctx.withTasks(func(svc *tasks.Service) error {
				task, err := svc.MoveDev(cmd.Context(), refFromArgs(args), to, role, notes)
				if err != nil {
					return err
				}
				printTransitionResult(cmd.OutOrStdout(), task)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "Target status")
	cmd.Flags().StringVar(&actor, "actor", "", "Acting role")
	cmd.Flags().StringVar(&notes, "notes", "", "Transition notes")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newTaskDecideCommand(ctx *commandContext) *cobra.Command {
	var actor, decision, notes string

	cmd := &cobra.Command{
		Use:   "decide <repo> <feature> <taskID>",
		Short: "Approve or reject a task in code review or QA",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := workflow.ParseRole(actor)
			if err != nil {
				return err
			}
			d, err := workflow.ParseDecision(decision)
			if err != nil {
				return err
			}
			return ctx.withTasks(func(svc *tasks.Service) error {
				task, err := svc.DevDecision(cmd.Context(), refFromArgs(args), role, d, notes)
				if err != nil {
					return err
				}
				printTransitionResult(cmd.OutOrStdout(), task)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "Deciding role (codeReviewer or qa)")
	cmd.Flags().StringVar(&decision, "decision", "", "approve or reject")
	cmd.Flags().StringVar(&notes, "notes", "", "Decision notes")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func newTaskResetCommand(ctx *commandContext) *cobra.Command {
	var actor, notes string

	cmd := &cobra.Command{
		Use:   "reset <repo> <feature> <taskID>",
		Short: "Send a task in NeedsRefinement back to stakeholder review",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := workflow.ParseRole(actor)
			if err != nil {
				return err
			}
			return ctx.withTasks(func(svc *tasks.Service) error {
				task, err := svc.Reset(cmd.Context(), refFromArgs(args), role, notes)
				if err != nil {
					return err
				}
				printTransitionResult(cmd.OutOrStdout(), task)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", string(workflow.RoleProductDirector), "Acting role (productDirector or orchestrator)")
	cmd.Flags().StringVar(&notes, "notes", "", "Reset notes")
	return cmd
}

func newTaskProgressCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "progress <repo> <feature> <taskID>",
		Short: "Show which stakeholders have approved a task",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withTasks(func(svc *tasks.Service) error {
				progress, err := svc.Progress(cmd.Context(), refFromArgs(args))
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, progress)
				}
				current := "-"
				if progress.CurrentRole != "" {
					current = roleLabel(progress.CurrentRole)
				}
				rejected := "-"
				if progress.RejectedBy != "" {
					rejected = roleLabel(progress.RejectedBy)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderKeyValues([][]string{
					{"Approved", roleList(progress.Completed)},
					{"Pending", roleList(progress.Pending)},
					{"Current reviewer", current},
					{"Rejected by", rejected},
				}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printTransitionResult(out io.Writer, task *workflow.Task) {
	if len(task.Transitions) == 0 {
		fmt.Fprintf(out, "Task %s is %s\n", task.ID, task.Status)
		return
	}
	last := task.Transitions[len(task.Transitions)-1]
	pal := newPalette(out)
	fmt.Fprintf(out, "Task %s: %s -> %s (%s)\n", task.ID, last.From, pal.status(string(last.To)), roleLabel(last.Actor))
}
