package taskfile

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"stagehand/internal/workflow"
)

// ParseReviewFields decodes the role-specific part of a review from YAML or
// JSON. Keys belonging to another role are rejected. Empty input yields the
// zero fields for role.
func ParseReviewFields(role workflow.Role, data []byte) (workflow.ReviewFields, error) {
	switch role {
	case workflow.RoleProductDirector:
		return decodeFields[workflow.ProductDirectorFields](role, data)
	case workflow.RoleArchitect:
		return decodeFields[workflow.ArchitectFields](role, data)
	case workflow.RoleUiUxExpert:
		return decodeFields[workflow.UiUxFields](role, data)
	case workflow.RoleSecurityOfficer:
		return decodeFields[workflow.SecurityFields](role, data)
	default:
		return nil, fmt.Errorf("taskfile: %q is not a reviewing role", role)
	}
}

// LoadReviewFields reads review fields for role from path.
func LoadReviewFields(role workflow.Role, path string) (workflow.ReviewFields, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("taskfile: read %s: %w", path, err)
	}
	return ParseReviewFields(role, content)
}

func decodeFields[T workflow.ReviewFields](role workflow.Role, data []byte) (workflow.ReviewFields, error) {
	var fields T
	if len(bytes.TrimSpace(data)) == 0 {
		return fields, nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fields); err != nil {
		return nil, fmt.Errorf("taskfile: decode %s review fields: %w", role, err)
	}
	return fields, nil
}
