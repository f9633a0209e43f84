// Package tasks applies workflow decisions to persisted tasks: load, decide
// with the engine, write back under a status guard, and announce the change.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stagehand/internal/events"
	"stagehand/internal/logging"
	"stagehand/internal/services"
	"stagehand/internal/store"
	"stagehand/internal/taskfile"
	"stagehand/internal/workflow"
)

// Store is the persistence surface the service needs.
type Store interface {
	GetTask(ctx context.Context, repoName, featureSlug, id string) (*workflow.Task, error)
	ListTasks(ctx context.Context, repoName, featureSlug string) ([]*workflow.Task, error)
	CreateTask(ctx context.Context, task *workflow.Task) error
	EnsureFeature(ctx context.Context, repoName, featureSlug, title string) error
	ApplyTransition(ctx context.Context, task *workflow.Task, expectedFrom workflow.Status, transition workflow.Transition) error
}

// Ref names one task.
type Ref struct {
	Repo    string
	Feature string
	ID      string
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s/%s", r.Repo, r.Feature, r.ID)
}

// Service performs task operations.
type Service struct {
	store  Store
	engine *workflow.Engine
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the time source for transitions.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPublisher sets where task events go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.events = events.OrDiscard(p)
	}
}

// NewService constructs a task service.
func NewService(st Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	svc := &Service{
		store:  st,
		engine: workflow.NewEngine(),
		events: events.Discard,
		logger: logging.NewComponentLogger(logger, "tasks"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Engine exposes the rule engine used by the service.
func (s *Service) Engine() *workflow.Engine {
	return s.engine
}

// Get loads a task or returns ErrNotFound.
func (s *Service) Get(ctx context.Context, ref Ref) (*workflow.Task, error) {
	task, err := s.store.GetTask(ctx, ref.Repo, ref.Feature, ref.ID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, services.Wrap(services.ErrNotFound, "tasks", "get", fmt.Sprintf("task %s does not exist", ref), nil)
	}
	return task, nil
}

// List returns the tasks of a feature in execution order.
func (s *Service) List(ctx context.Context, repo, feature string) ([]*workflow.Task, error) {
	return s.store.ListTasks(ctx, repo, feature)
}

// Review records a stakeholder decision.
func (s *Service) Review(ctx context.Context, ref Ref, role workflow.Role, decision workflow.Decision, notes string, fields workflow.ReviewFields) (*workflow.Task, error) {
	return s.mutate(ctx, ref, "review", func(task *workflow.Task, now time.Time) (workflow.Transition, error) {
		return s.engine.ApplyReview(task, role, decision, notes, fields, now)
	})
}

// MoveDev moves a task through the development pipeline.
func (s *Service) MoveDev(ctx context.Context, ref Ref, target workflow.Status, actor workflow.Role, notes string) (*workflow.Task, error) {
	return s.mutate(ctx, ref, "move", func(task *workflow.Task, now time.Time) (workflow.Transition, error) {
		return s.engine.ApplyDevTransition(task, target, actor, notes, now)
	})
}

// DevDecision applies an approve/reject verdict on a task in InReview or InQA.
func (s *Service) DevDecision(ctx context.Context, ref Ref, actor workflow.Role, decision workflow.Decision, notes string) (*workflow.Task, error) {
	return s.mutate(ctx, ref, "decide", func(task *workflow.Task, now time.Time) (workflow.Transition, error) {
		return s.engine.ApplyDevDecision(task, actor, decision, notes, now)
	})
}

// Reset sends a task in NeedsRefinement back to the product director.
func (s *Service) Reset(ctx context.Context, ref Ref, actor workflow.Role, notes string) (*workflow.Task, error) {
	return s.mutate(ctx, ref, "reset", func(task *workflow.Task, now time.Time) (workflow.Transition, error) {
		return s.engine.ResetRefinement(task, actor, notes, now)
	})
}

// Progress reports where a task stands in the review pipeline.
func (s *Service) Progress(ctx context.Context, ref Ref) (workflow.Progress, error) {
	task, err := s.Get(ctx, ref)
	if err != nil {
		return workflow.Progress{}, err
	}
	return s.engine.ReviewProgress(task), nil
}

func (s *Service) mutate(ctx context.Context, ref Ref, operation string, apply func(*workflow.Task, time.Time) (workflow.Transition, error)) (*workflow.Task, error) {
	task, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	from := task.Status
	transition, err := apply(task, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.ApplyTransition(ctx, task, from, transition); err != nil {
		if errors.Is(err, services.ErrConflict) {
			logging.WarnWithContext(s.logger, "task changed concurrently", "task_conflict",
				logging.String(logging.FieldRepo, ref.Repo),
				logging.String(logging.FieldFeature, ref.Feature),
				logging.String(logging.FieldTaskID, ref.ID),
				logging.String(logging.FieldErrorHint, "reload the task and retry the "+operation),
				logging.Error(err),
			)
		}
		return nil, err
	}

	s.logger.Info("task transition",
		logging.String(logging.FieldEventType, "task_"+operation),
		logging.String(logging.FieldRepo, ref.Repo),
		logging.String(logging.FieldFeature, ref.Feature),
		logging.String(logging.FieldTaskID, ref.ID),
		logging.String("from", string(transition.From)),
		logging.String("to", string(transition.To)),
		logging.String("actor", string(transition.Actor)),
	)
	s.events.Publish(events.Event{
		Kind:        events.KindTaskTransition,
		At:          transition.At,
		RepoName:    ref.Repo,
		FeatureSlug: ref.Feature,
		TaskID:      ref.ID,
		From:        string(transition.From),
		To:          string(transition.To),
		Message:     operation,
	})
	return task, nil
}

// ImportResult lists what an import created and skipped.
type ImportResult struct {
	Repo    string
	Feature string
	Created []string
	Skipped []string
}

// Import creates the tasks of a manifest. Tasks whose id already exists in
// the feature are skipped when skipExisting is set and fail the import
// otherwise; tasks created before the failure stay.
func (s *Service) Import(ctx context.Context, manifest *taskfile.Manifest, skipExisting bool) (ImportResult, error) {
	if manifest == nil {
		return ImportResult{}, services.Wrap(services.ErrValidation, "tasks", "import", "manifest is required", nil)
	}
	result := ImportResult{Repo: manifest.Repo, Feature: manifest.Feature}
	built, err := manifest.BuildTasks(s.now())
	if err != nil {
		return result, services.Wrap(services.ErrValidation, "tasks", "import", "invalid manifest", err)
	}
	if err := s.store.EnsureFeature(ctx, manifest.Repo, manifest.Feature, manifest.Title); err != nil {
		return result, err
	}
	for _, task := range built {
		err := s.store.CreateTask(ctx, task)
		switch {
		case err == nil:
			result.Created = append(result.Created, task.ID)
		case skipExisting && errors.Is(err, services.ErrConflict):
			result.Skipped = append(result.Skipped, task.ID)
		default:
			return result, err
		}
	}
	s.logger.Info("feature imported",
		logging.String(logging.FieldEventType, "feature_imported"),
		logging.String(logging.FieldRepo, manifest.Repo),
		logging.String(logging.FieldFeature, manifest.Feature),
		logging.Int("created", len(result.Created)),
		logging.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

var _ Store = (*store.Store)(nil)
