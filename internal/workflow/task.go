package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Priority tiers for acceptance criteria.
const (
	PriorityMust   = "must"
	PriorityShould = "should"
	PriorityCould  = "could"
)

// AcceptanceCriterion is one verifiable condition a task must satisfy.
type AcceptanceCriterion struct {
	ID       string `json:"id" yaml:"id"`
	Priority string `json:"priority" yaml:"priority"`
	Text     string `json:"text" yaml:"text"`
	Verified bool   `json:"verified" yaml:"verified"`
}

// TestScenario describes a manual or automated check for a task.
type TestScenario struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Steps    []string `json:"steps" yaml:"steps"`
	Expected string   `json:"expected" yaml:"expected"`
	Status   string   `json:"status" yaml:"status"`
}

// Transition is one audit entry. Transitions are appended, never edited.
type Transition struct {
	From     Status            `json:"from"`
	To       Status            `json:"to"`
	Actor    Role              `json:"actor"`
	At       time.Time         `json:"timestamp"`
	Notes    string            `json:"notes,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Task is a unit of work inside a feature.
type Task struct {
	ID                 string                `json:"id"`
	RepoName           string                `json:"repoName"`
	FeatureSlug        string                `json:"featureSlug"`
	Title              string                `json:"title"`
	Description        string                `json:"description"`
	Status             Status                `json:"status"`
	OrderOfExecution   int                   `json:"orderOfExecution"`
	AcceptanceCriteria []AcceptanceCriterion `json:"acceptanceCriteria"`
	TestScenarios      []TestScenario        `json:"testScenarios"`
	Reviews            Reviews               `json:"stakeholderReview"`
	Transitions        []Transition          `json:"transitions"`
	CreatedAt          time.Time             `json:"createdAt"`
	UpdatedAt          time.Time             `json:"updatedAt"`
}

// NewTask returns a task waiting for the product director.
func NewTask(repoName, featureSlug, id, title string, now time.Time) *Task {
	now = now.UTC()
	return &Task{
		ID:                 id,
		RepoName:           repoName,
		FeatureSlug:        featureSlug,
		Title:              title,
		Status:             StatusPendingProductDirector,
		AcceptanceCriteria: []AcceptanceCriterion{},
		TestScenarios:      []TestScenario{},
		Transitions:        []Transition{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Normalize fills nil collections so a task always carries empty lists.
func (t *Task) Normalize() {
	if t.AcceptanceCriteria == nil {
		t.AcceptanceCriteria = []AcceptanceCriterion{}
	}
	if t.TestScenarios == nil {
		t.TestScenarios = []TestScenario{}
	}
	if t.Transitions == nil {
		t.Transitions = []Transition{}
	}
	for i := range t.TestScenarios {
		if t.TestScenarios[i].Steps == nil {
			t.TestScenarios[i].Steps = []string{}
		}
	}
}

// Validate checks the fields a persisted task must carry.
func (t *Task) Validate() error {
	var errs []error
	if strings.TrimSpace(t.ID) == "" {
		errs = append(errs, errors.New("task id is required"))
	}
	if strings.TrimSpace(t.RepoName) == "" {
		errs = append(errs, errors.New("repository name is required"))
	}
	if strings.TrimSpace(t.FeatureSlug) == "" {
		errs = append(errs, errors.New("feature slug is required"))
	}
	if strings.TrimSpace(t.Title) == "" {
		errs = append(errs, errors.New("task title is required"))
	}
	if !t.Status.Valid() {
		errs = append(errs, fmt.Errorf("unknown task status %q", t.Status))
	}
	if t.OrderOfExecution < 0 {
		errs = append(errs, errors.New("orderOfExecution must not be negative"))
	}
	seen := make(map[string]struct{}, len(t.AcceptanceCriteria))
	for i, ac := range t.AcceptanceCriteria {
		switch ac.Priority {
		case PriorityMust, PriorityShould, PriorityCould:
		default:
			errs = append(errs, fmt.Errorf("acceptance criterion %d: priority %q must be must, should or could", i+1, ac.Priority))
		}
		if strings.TrimSpace(ac.Text) == "" {
			errs = append(errs, fmt.Errorf("acceptance criterion %d: text is required", i+1))
		}
		if ac.ID != "" {
			if _, dup := seen[ac.ID]; dup {
				errs = append(errs, fmt.Errorf("acceptance criterion id %q is duplicated", ac.ID))
			}
			seen[ac.ID] = struct{}{}
		}
	}
	if err := t.Reviews.validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
