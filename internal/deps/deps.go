package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"stagehand/internal/clitool"
)

// Requirement defines an external binary stagehand may launch.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = path
		results = append(results, status)
	}
	return results
}

// ToolRequirements lists every allow-listed tool. The active tool is
// required; the others are optional so that switching tools later is a
// settings change only.
func ToolRequirements(active string) []Requirement {
	tools := clitool.All()
	reqs := make([]Requirement, 0, len(tools))
	for _, tool := range tools {
		reqs = append(reqs, Requirement{
			Name:        tool.ID,
			Command:     tool.Binary,
			Description: tool.Description,
			Optional:    tool.ID != active,
		})
	}
	return reqs
}
