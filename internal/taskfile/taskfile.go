// Package taskfile reads feature manifests: a repository, a feature, and the
// tasks that make it up, written as YAML or JSON.
package taskfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stagehand/internal/textutil"
	"stagehand/internal/workflow"
)

// Manifest is the top-level document.
type Manifest struct {
	Repo    string     `yaml:"repo"`
	Feature string     `yaml:"feature"`
	Title   string     `yaml:"title"`
	Tasks   []TaskSpec `yaml:"tasks"`
}

// TaskSpec describes one task to create.
type TaskSpec struct {
	ID                 string                         `yaml:"id"`
	Title              string                         `yaml:"title"`
	Description        string                         `yaml:"description"`
	OrderOfExecution   *int                           `yaml:"orderOfExecution"`
	AcceptanceCriteria []workflow.AcceptanceCriterion `yaml:"acceptanceCriteria"`
	TestScenarios      []workflow.TestScenario        `yaml:"testScenarios"`
}

// Parse decodes a manifest from YAML or JSON bytes and validates it.
func Parse(data []byte) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("taskfile: manifest is empty")
	}
	var manifest Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&manifest); err != nil {
		return nil, fmt.Errorf("taskfile: decode manifest: %w", err)
	}
	if err := manifest.normalize(); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// Load reads a manifest from r.
func Load(r io.Reader) (*Manifest, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("taskfile: read manifest: %w", err)
	}
	return Parse(content)
}

// LoadFile reads a manifest from path.
func LoadFile(path string) (*Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("taskfile: read %s: %w", path, err)
	}
	manifest, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return manifest, nil
}

func (m *Manifest) normalize() error {
	m.Repo = strings.TrimSpace(m.Repo)
	m.Feature = strings.TrimSpace(m.Feature)
	m.Title = strings.TrimSpace(m.Title)

	var errs []error
	if err := textutil.CheckIdentifier("repo", m.Repo); err != nil {
		errs = append(errs, err)
	}
	if err := textutil.CheckIdentifier("feature", m.Feature); err != nil {
		errs = append(errs, err)
	}
	if len(m.Tasks) == 0 {
		errs = append(errs, errors.New("at least one task is required"))
	}
	seen := make(map[string]struct{}, len(m.Tasks))
	for i := range m.Tasks {
		spec := &m.Tasks[i]
		spec.ID = strings.TrimSpace(spec.ID)
		spec.Title = strings.TrimSpace(spec.Title)
		if spec.ID == "" {
			errs = append(errs, fmt.Errorf("task %d: id is required", i+1))
			continue
		}
		if _, dup := seen[spec.ID]; dup {
			errs = append(errs, fmt.Errorf("task %s: id is duplicated", spec.ID))
		}
		seen[spec.ID] = struct{}{}
		if spec.OrderOfExecution == nil {
			order := i + 1
			spec.OrderOfExecution = &order
		}
		for j := range spec.AcceptanceCriteria {
			ac := &spec.AcceptanceCriteria[j]
			if ac.Priority == "" {
				ac.Priority = workflow.PriorityMust
			}
			if ac.ID == "" {
				ac.ID = fmt.Sprintf("AC-%d", j+1)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("taskfile: invalid manifest: %w", errors.Join(errs...))
	}
	return nil
}

// BuildTasks builds the workflow tasks described by the manifest, each waiting for
// the product director.
func (m *Manifest) BuildTasks(now time.Time) ([]*workflow.Task, error) {
	tasks := make([]*workflow.Task, 0, len(m.Tasks))
	var errs []error
	for _, spec := range m.Tasks {
		task := workflow.NewTask(m.Repo, m.Feature, spec.ID, spec.Title, now)
		task.Description = strings.TrimSpace(spec.Description)
		if spec.OrderOfExecution != nil {
			task.OrderOfExecution = *spec.OrderOfExecution
		}
		task.AcceptanceCriteria = append(task.AcceptanceCriteria, spec.AcceptanceCriteria...)
		task.TestScenarios = append(task.TestScenarios, spec.TestScenarios...)
		task.Normalize()
		if err := task.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", spec.ID, err))
			continue
		}
		tasks = append(tasks, task)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("taskfile: %w", errors.Join(errs...))
	}
	return tasks, nil
}
