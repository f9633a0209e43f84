package preflight

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"stagehand/internal/clitool"
	"stagehand/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckReadableDirectory verifies that the directory exists and can be listed
// and entered. Repositories are written by the tool, not by stagehand, so the
// base folder only needs read access from the daemon.
func CheckReadableDirectory(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "read ok")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckTool verifies that the active CLI tool is allow-listed and installed.
func CheckTool(active string) Result {
	const name = "CLI tool"
	tool, ok := clitool.Lookup(active)
	if !ok {
		return Result{Name: name, Detail: clitool.Validate(active).Error()}
	}
	status := deps.CheckBinaries([]deps.Requirement{{Name: tool.ID, Command: tool.Binary}})[0]
	if !status.Available {
		return Result{Name: name, Detail: fmt.Sprintf("%s: %s", tool.ID, status.Detail)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", tool.ID, status.Path)}
}

// CheckToolBinaries reports every allow-listed tool binary.
func CheckToolBinaries(active string) []deps.Status {
	return deps.CheckBinaries(deps.ToolRequirements(active))
}
