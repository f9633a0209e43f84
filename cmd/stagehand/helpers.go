package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stagehand/internal/textutil"
)

func yesNo(value bool) string {
	return textutil.Ternary(value, "yes", "no")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func dash(value string) string {
	return textutil.Ternary(strings.TrimSpace(value) == "", "-", value)
}

// firstLine shortens multi-line error messages for table cells.
func firstLine(value string) string {
	line, _, _ := strings.Cut(value, "\n")
	const limit = 80
	if len(line) > limit {
		line = line[:limit-3] + "..."
	}
	return dash(line)
}

func parsePositiveIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid item id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
