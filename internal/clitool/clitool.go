// Package clitool holds the fixed allow-list of external code-generation tools
// and the argument templates used to launch them.
//
// Arguments are built from a repository name and a feature slug only, and are
// always passed as an argument vector; no shell ever sees them.
package clitool

import (
	"fmt"
	"slices"
	"strings"
)

// Tool describes one allow-listed external CLI.
type Tool struct {
	ID          string
	Binary      string
	Description string
	args        func(prompt string) []string
}

// Args returns the argument vector for running the tool against one feature.
func (t Tool) Args(repoName, featureSlug string) []string {
	return t.args(Prompt(repoName, featureSlug))
}

var tools = map[string]Tool{
	"claude": {
		ID:          "claude",
		Binary:      "claude",
		Description: "Claude Code CLI",
		args: func(prompt string) []string {
			return []string{"-p", prompt, "--output-format", "json", "--dangerously-skip-permissions"}
		},
	},
	"codex": {
		ID:          "codex",
		Binary:      "codex",
		Description: "OpenAI Codex CLI",
		args: func(prompt string) []string {
			return []string{"exec", "--full-auto", prompt}
		},
	},
	"gemini": {
		ID:          "gemini",
		Binary:      "gemini",
		Description: "Gemini CLI",
		args: func(prompt string) []string {
			return []string{"--yolo", "-p", prompt}
		},
	},
}

// Lookup returns the tool registered under id. Matching is exact; callers
// normalize case before persisting identifiers.
func Lookup(id string) (Tool, bool) {
	tool, ok := tools[id]
	return tool, ok
}

// Allowed reports whether id is on the allow-list.
func Allowed(id string) bool {
	_, ok := tools[id]
	return ok
}

// IDs returns the allow-listed identifiers in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(tools))
	for id := range tools {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// All returns every allow-listed tool sorted by ID.
func All() []Tool {
	out := make([]Tool, 0, len(tools))
	for _, id := range IDs() {
		out = append(out, tools[id])
	}
	return out
}

// Validate returns an error naming the allow-list when id is not on it.
func Validate(id string) error {
	if Allowed(id) {
		return nil
	}
	return fmt.Errorf("cli tool %q is not allowed (allowed: %s)", id, strings.Join(IDs(), ", "))
}

// Prompt is the single instruction handed to every tool.
func Prompt(repoName, featureSlug string) string {
	return fmt.Sprintf(
		"Implement feature %q in repository %q. Every task for this feature has passed stakeholder review; "+
			"work through them in order of execution, keep changes scoped to this repository, and run the project's tests before finishing.",
		featureSlug, repoName,
	)
}
