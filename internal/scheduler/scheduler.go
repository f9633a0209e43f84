package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"stagehand/internal/config"
	"stagehand/internal/events"
	"stagehand/internal/logging"
	"stagehand/internal/services"
	"stagehand/internal/store"
)

// Store is the persistence surface the scheduler reads and writes.
type Store interface {
	GetSettings(ctx context.Context) (store.Settings, error)
	ListRepositories(ctx context.Context) ([]store.Repository, error)
	FeatureScanStates(ctx context.Context, repoName string) ([]store.FeatureScanState, error)
	Enqueue(ctx context.Context, repoName, featureSlug, cliTool string) (store.EnqueueResult, error)
}

// Scheduler periodically scans features and enqueues ready ones.
type Scheduler struct {
	store      Store
	logger     *slog.Logger
	events     events.Publisher
	floor      time.Duration
	errorRetry time.Duration

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastScan time.Time
	queued   int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPublisher sets where enqueue and scan events go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Scheduler) {
		s.events = events.OrDiscard(p)
	}
}

// New constructs a scheduler.
func New(cfg *config.Config, st Store, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Scheduler{
		store:      st,
		logger:     logging.NewComponentLogger(logger, "queue-scheduler"),
		events:     events.Discard,
		floor:      cfg.SchedulerFloor(),
		errorRetry: cfg.ErrorRetryDuration(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the scan loop. The first scan runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(runCtx)
	s.logger.Info("scheduler started",
		logging.String(logging.FieldEventType, "scheduler_started"),
		logging.Duration("floor", s.floor),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight scan to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped", logging.String(logging.FieldEventType, "scheduler_stopped"))
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.safeScan(ctx); err != nil && ctx.Err() == nil {
			logging.ErrorWithContext(s.logger, "scan failed", "scheduler_scan_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check database access; the next scan retries"),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.nextInterval(ctx)):
		}
	}
}

// safeScan keeps a panicking scan from ending the loop.
func (s *Scheduler) safeScan(ctx context.Context) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan panicked: %v", r)
			s.setLastError(err)
		}
	}()
	return s.Scan(ctx)
}

// nextInterval reads the stored interval and clamps it to the floor. When
// settings cannot be read the error retry interval is used.
func (s *Scheduler) nextInterval(ctx context.Context) time.Duration {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logging.WarnWithContext(s.logger, "settings unavailable; using retry interval", "scheduler_settings_failed",
				logging.Error(err),
				logging.Duration("retry_in", s.errorRetry),
			)
		}
		return maxDuration(s.errorRetry, s.floor)
	}
	return maxDuration(settings.CronInterval(), s.floor)
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// Scan runs one cycle and returns how many items it created. Failures on
// individual features are logged, collected, and do not stop the cycle.
func (s *Scheduler) Scan(ctx context.Context) (int, error) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, s.logger)

	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		s.setLastError(err)
		return 0, fmt.Errorf("read settings: %w", err)
	}
	if !settings.WorkerEnabled {
		logger.Debug("worker disabled; scan skipped", logging.String(logging.FieldEventType, "scheduler_scan_skipped"))
		s.recordScan(0, nil)
		return 0, nil
	}

	repos, err := s.store.ListRepositories(ctx)
	if err != nil {
		s.setLastError(err)
		return 0, fmt.Errorf("list repositories: %w", err)
	}

	var (
		created int
		errs    []error
	)
	for _, repo := range repos {
		if ctx.Err() != nil {
			break
		}
		states, err := s.store.FeatureScanStates(ctx, repo.Name)
		if err != nil {
			logging.WarnWithContext(logger, "repository scan failed", "scheduler_repo_failed",
				logging.String(logging.FieldRepo, repo.Name),
				logging.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", repo.Name, err))
			continue
		}
		for _, state := range states {
			if !Eligible(state) {
				continue
			}
			res, err := s.store.Enqueue(ctx, state.RepoName, state.FeatureSlug, settings.CLITool)
			if err != nil {
				logging.WarnWithContext(logger, "enqueue failed", "scheduler_enqueue_failed",
					logging.String(logging.FieldRepo, state.RepoName),
					logging.String(logging.FieldFeature, state.FeatureSlug),
					logging.Error(err),
				)
				errs = append(errs, fmt.Errorf("%s/%s: %w", state.RepoName, state.FeatureSlug, err))
				continue
			}
			if res.AlreadyQueued {
				continue
			}
			created++
			logger.Info("feature queued",
				logging.String(logging.FieldEventType, "feature_enqueued"),
				logging.Int64(logging.FieldItemID, res.ID),
				logging.String(logging.FieldRepo, state.RepoName),
				logging.String(logging.FieldFeature, state.FeatureSlug),
				logging.Int("tasks", state.Total),
				logging.String("cli_tool", settings.CLITool),
			)
			s.events.Publish(events.Event{
				Kind:        events.KindQueueEnqueued,
				ItemID:      res.ID,
				RepoName:    state.RepoName,
				FeatureSlug: state.FeatureSlug,
			})
		}
	}

	joined := errors.Join(errs...)
	s.recordScan(created, joined)
	s.events.Publish(events.Event{Kind: events.KindScanCompleted, Count: created})
	if created > 0 {
		logger.Info("scan complete",
			logging.String(logging.FieldEventType, "scheduler_scan_completed"),
			logging.Int("enqueued", created),
		)
	}
	return created, joined
}

// Eligible reports whether a feature should be queued: every task is ready,
// nothing is pending or running for it, and its tasks changed since it was
// last queued.
func Eligible(state store.FeatureScanState) bool {
	if !state.AllReady() || state.Active {
		return false
	}
	if state.LastEnqueuedAt == nil {
		return true
	}
	return state.LastTaskUpdate != nil && state.LastTaskUpdate.After(*state.LastEnqueuedAt)
}

func (s *Scheduler) recordScan(created int, err error) {
	s.mu.Lock()
	s.lastScan = time.Now()
	s.queued += created
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Scheduler) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// Summary is a snapshot of scheduler state.
type Summary struct {
	Running  bool
	LastScan time.Time
	Enqueued int
	LastErr  string
}

// Status returns the current summary.
func (s *Scheduler) Status() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary := Summary{Running: s.running, LastScan: s.lastScan, Enqueued: s.queued}
	if s.lastErr != nil {
		summary.LastErr = s.lastErr.Error()
	}
	return summary
}
