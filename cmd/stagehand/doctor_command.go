package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"stagehand/internal/config"
	"stagehand/internal/preflight"
	"stagehand/internal/store"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, tool binaries, and database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				out := cmd.OutOrStdout()
				pal := newPalette(out)

				settings, err := st.GetSettings(cmd.Context())
				if err != nil {
					return err
				}
				results := preflight.RunAll(cfg, settings)
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					rows = append(rows, []string{r.Name, pal.check(r.Passed), r.Detail})
				}
				fmt.Fprint(out, renderTable([]string{"Check", "Result", "Detail"}, rows, nil))

				toolRows := [][]string{}
				for _, status := range preflight.CheckToolBinaries(settings.CLITool) {
					detail := status.Path
					if !status.Available {
						detail = status.Detail
					}
					toolRows = append(toolRows, []string{
						status.Name,
						status.Description,
						yesNo(!status.Optional),
						pal.check(status.Available),
						detail,
					})
				}
				fmt.Fprintln(out)
				fmt.Fprint(out, renderTable([]string{"Tool", "Description", "Required", "Found", "Path"}, toolRows, nil))

				health, err := st.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out)
				fmt.Fprint(out, renderKeyValues([][]string{
					{"Database", health.DBPath},
					{"Readable", yesNo(health.DatabaseReadable)},
					{"Schema version", strconv.Itoa(health.SchemaVersion)},
					{"Missing tables", dash(strings.Join(health.MissingTables, ", "))},
					{"Integrity", pal.check(health.IntegrityCheck)},
					{"Queue items", strconv.Itoa(health.TotalItems)},
					{"Tasks", strconv.Itoa(health.TotalTasks)},
				}))

				failed := len(preflight.Failed(results))
				if !health.IntegrityCheck || len(health.MissingTables) > 0 {
					failed++
				}
				if failed > 0 {
					return fmt.Errorf("%d check(s) failed", failed)
				}
				return nil
			})
		},
	}
}
