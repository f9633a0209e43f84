package main

import (
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"stagehand/internal/workflow"
)

var titleCaser = cases.Title(language.English)

// roleLabels overrides labels that title casing gets wrong.
var roleLabels = map[workflow.Role]string{
	workflow.RoleUiUxExpert: "UI/UX Expert",
	workflow.RoleQA:         "QA",
}

// roleLabel turns a camelCase role into display words: "productDirector"
// becomes "Product Director".
func roleLabel(role workflow.Role) string {
	if label, ok := roleLabels[role]; ok {
		return label
	}
	return titleCaser.String(splitCamel(string(role)))
}

func roleList(roles []workflow.Role) string {
	if len(roles) == 0 {
		return "-"
	}
	labels := make([]string, len(roles))
	for i, role := range roles {
		labels[i] = roleLabel(role)
	}
	return strings.Join(labels, ", ")
}

func splitCamel(value string) string {
	var b strings.Builder
	for i, r := range value {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

type palette struct {
	enabled bool
}

func newPalette(w io.Writer) palette {
	return palette{enabled: shouldColorize(w)}
}

// status colours queue and task statuses by outcome.
func (p palette) status(value string) string {
	if !p.enabled {
		return value
	}
	var colors text.Colors
	switch value {
	case "completed", string(workflow.StatusDone), string(workflow.StatusReadyForDevelopment):
		colors = text.Colors{text.FgGreen}
	case "failed", string(workflow.StatusNeedsRefinement), string(workflow.StatusNeedsChanges):
		colors = text.Colors{text.FgRed}
	case "running", string(workflow.StatusInProgress), string(workflow.StatusInReview), string(workflow.StatusInQA):
		colors = text.Colors{text.FgYellow}
	case "pending":
		colors = text.Colors{text.FgCyan}
	default:
		return value
	}
	return colors.Sprint(value)
}

func (p palette) check(passed bool) string {
	label := "FAIL"
	colors := text.Colors{text.FgRed}
	if passed {
		label = "ok"
		colors = text.Colors{text.FgGreen}
	}
	if !p.enabled {
		return label
	}
	return colors.Sprint(label)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
