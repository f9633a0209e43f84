package worker

import (
	"errors"
	"fmt"
	"strings"

	"stagehand/internal/clitool"
	"stagehand/internal/fileutil"
	"stagehand/internal/services"
	"stagehand/internal/store"
)

// prepare checks an item against the allow-list and the repository
// containment rules and returns what to run. Every error wraps
// ErrSecurityPolicy or ErrConfiguration.
func prepare(item *store.QueueItem, settings store.Settings) (Spec, error) {
	tool, ok := clitool.Lookup(item.CLITool)
	if !ok {
		return Spec{}, services.Wrap(services.ErrSecurityPolicy, "worker", "validate",
			clitool.Validate(item.CLITool).Error(), nil)
	}
	base := strings.TrimSpace(settings.BaseReposFolder)
	if base == "" {
		return Spec{}, services.Wrap(services.ErrConfiguration, "worker", "validate",
			"base repository folder is not configured", nil)
	}
	repoPath, err := fileutil.ResolveWithin(base, item.RepoName)
	switch {
	case err == nil:
	case errors.Is(err, fileutil.ErrOutsideRoot):
		return Spec{}, services.Wrap(services.ErrSecurityPolicy, "worker", "validate",
			fmt.Sprintf("path traversal rejected: repository %q resolves outside the base folder", item.RepoName), nil)
	case errors.Is(err, fileutil.ErrMissing):
		return Spec{}, services.Wrap(services.ErrConfiguration, "worker", "validate",
			fmt.Sprintf("repository directory for %q does not exist", item.RepoName), nil)
	case errors.Is(err, fileutil.ErrNotDirectory):
		return Spec{}, services.Wrap(services.ErrConfiguration, "worker", "validate",
			fmt.Sprintf("repository path for %q is not a directory", item.RepoName), nil)
	default:
		return Spec{}, services.Wrap(services.ErrConfiguration, "worker", "validate",
			"repository path could not be resolved", err)
	}
	return Spec{
		Binary: tool.Binary,
		Args:   tool.Args(item.RepoName, item.FeatureSlug),
		Dir:    repoPath,
	}, nil
}
