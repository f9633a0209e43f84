package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stagehand/internal/config"
	"stagehand/internal/events"
	"stagehand/internal/logging"
	"stagehand/internal/services"
	"stagehand/internal/store"
)

// Store is the persistence surface the worker needs.
type Store interface {
	GetSettings(ctx context.Context) (store.Settings, error)
	Claim(ctx context.Context, workerID string) (*store.QueueItem, error)
	Complete(ctx context.Context, id int64) error
	Fail(ctx context.Context, id int64, message string) error
	FailStaleRunning(ctx context.Context, cutoff time.Time, message string) (int64, error)
}

// staleMessage is recorded on items a previous worker left running.
const staleMessage = "worker lost: item was still running when its worker stopped"

// Worker claims and executes queue items one at a time.
type Worker struct {
	id           string
	store        Store
	runner       Runner
	logger       *slog.Logger
	events       events.Publisher
	pollInterval time.Duration
	errorRetry   time.Duration
	staleAfter   time.Duration

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	current *store.QueueItem
}

// Option configures a Worker.
type Option func(*Worker)

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(w *Worker) {
		if r != nil {
			w.runner = r
		}
	}
}

// WithPublisher sets where queue events go.
func WithPublisher(p events.Publisher) Option {
	return func(w *Worker) {
		w.events = events.OrDiscard(p)
	}
}

// WithPollInterval overrides the idle delay between claims.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// NewID returns a worker identifier: the process id and a random suffix.
func NewID() string {
	return fmt.Sprintf("%d-%s", os.Getpid(), uuid.NewString()[:8])
}

// New constructs a worker with a ProcessRunner built from cfg.
func New(cfg *config.Config, st Store, logger *slog.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	id := NewID()
	w := &Worker{
		id:           id,
		store:        st,
		runner:       NewProcessRunner(cfg.ExecutionTimeout(), cfg.ExecutionGrace(), cfg.Execution.StderrLimitBytes),
		logger:       logging.NewComponentLogger(logger, "queue-worker").With(logging.String(logging.FieldWorkerID, id)),
		events:       events.Discard,
		pollInterval: cfg.WorkerPollDuration(),
		errorRetry:   cfg.ErrorRetryDuration(),
		staleAfter:   cfg.ExecutionTimeout() + cfg.ExecutionGrace() + time.Minute,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ID returns the identifier stamped on claimed items.
func (w *Worker) ID() string {
	return w.id
}

// Start fails items orphaned by a dead worker, then launches the claim loop.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("worker already running")
	}
	w.mu.Unlock()

	if _, err := w.ReclaimStale(ctx); err != nil {
		logging.WarnWithContext(w.logger, "stale item reclaim failed; orphaned items may block their features", "worker_reclaim_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database access"),
		)
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("worker already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	w.mu.Unlock()

	go w.run(runCtx)
	w.logger.Info("worker started",
		logging.String(logging.FieldEventType, "worker_started"),
		logging.Duration("poll_interval", w.pollInterval),
	)
	return nil
}

// Stop cancels the loop, terminating any running tool, and waits for it.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped", logging.String(logging.FieldEventType, "worker_stopped"))
}

// ReclaimStale fails items that have been running longer than any run may
// last.
func (w *Worker) ReclaimStale(ctx context.Context) (int64, error) {
	n, err := w.store.FailStaleRunning(ctx, time.Now().Add(-w.staleAfter), staleMessage)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.WarnWithContext(w.logger, "failed items orphaned by a previous worker", "worker_reclaimed_stale",
			logging.Int64("count", n),
			logging.String(logging.FieldImpact, "those features need a manual retry"),
		)
	}
	return n, nil
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := w.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.handleTickError(ctx, err)
			continue
		}
		if !processed {
			w.waitOrShutdown(ctx, w.pollInterval)
		}
	}
}

func (w *Worker) handleTickError(ctx context.Context, err error) {
	w.setLastError(err)
	logging.ErrorWithContext(w.logger, "worker tick failed", "worker_tick_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check database access"),
	)
	w.waitOrShutdown(ctx, w.errorRetry)
}

func (w *Worker) waitOrShutdown(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Tick claims at most one item and runs it to completion. It reports whether
// an item was processed. Failures of the item itself are recorded on the
// item, not returned; the error is for store problems only.
func (w *Worker) Tick(ctx context.Context) (bool, error) {
	settings, err := w.store.GetSettings(ctx)
	if err != nil {
		return false, fmt.Errorf("read settings: %w", err)
	}
	if !settings.WorkerEnabled {
		return false, nil
	}
	item, err := w.store.Claim(ctx, w.id)
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	if item == nil {
		return false, nil
	}
	return true, w.process(ctx, item, settings)
}

func (w *Worker) process(ctx context.Context, item *store.QueueItem, settings store.Settings) error {
	w.setCurrent(item)
	defer w.setCurrent(nil)

	ctx = services.WithItemID(ctx, item.ID)
	ctx = services.WithWorkerID(ctx, w.id)
	logger := logging.WithContext(ctx, w.logger).With(
		logging.String(logging.FieldRepo, item.RepoName),
		logging.String(logging.FieldFeature, item.FeatureSlug),
	)
	logger.Info("item claimed",
		logging.String(logging.FieldEventType, "item_claimed"),
		logging.String("cli_tool", item.CLITool),
	)
	w.publish(events.KindQueueClaimed, item, "")

	spec, err := prepare(item, settings)
	if err != nil {
		logging.WarnWithContext(logger, "item rejected before launch", "item_rejected",
			logging.String(logging.FieldErrorHint, hintFor(err)),
			logging.Error(err),
		)
		return w.fail(item, logger, describe(err))
	}

	res, runErr := w.runner.Run(ctx, spec)
	if runErr == nil {
		if err := w.store.Complete(context.WithoutCancel(ctx), item.ID); err != nil {
			return fmt.Errorf("complete item %d: %w", item.ID, err)
		}
		logger.Info("item completed",
			logging.String(logging.FieldEventType, "item_completed"),
			logging.Duration("duration", res.Duration),
		)
		w.publish(events.KindQueueCompleted, item, "")
		return nil
	}

	message := failureMessage(runErr, res)
	logging.WarnWithContext(logger, "item failed", "item_failed",
		logging.Int("exit_code", res.ExitCode),
		logging.Bool("timed_out", res.TimedOut),
		logging.Duration("duration", res.Duration),
		logging.String(logging.FieldErrorHint, hintFor(runErr)),
	)
	return w.fail(item, logger, message)
}

// fail records the failure even when ctx was cancelled by shutdown.
func (w *Worker) fail(item *store.QueueItem, logger *slog.Logger, message string) error {
	if err := w.store.Fail(context.Background(), item.ID, message); err != nil {
		logger.Error("could not record item failure",
			logging.String(logging.FieldEventType, "item_fail_write_failed"),
			logging.Error(err),
		)
		return fmt.Errorf("fail item %d: %w", item.ID, err)
	}
	w.publish(events.KindQueueFailed, item, message)
	return nil
}

func (w *Worker) publish(kind events.Kind, item *store.QueueItem, message string) {
	w.events.Publish(events.Event{
		Kind:        kind,
		ItemID:      item.ID,
		RepoName:    item.RepoName,
		FeatureSlug: item.FeatureSlug,
		Message:     message,
	})
}

// describe drops the component and operation labels from a wrapped error,
// keeping the marker and the detail.
func describe(err error) string {
	msg := err.Error()
	for _, label := range []string{"worker: validate: ", "worker: start tool: ", "worker: run tool: "} {
		msg = strings.Replace(msg, label, "", 1)
	}
	return msg
}

func failureMessage(runErr error, res Result) string {
	var b strings.Builder
	switch {
	case res.TimedOut:
		b.WriteString(describe(runErr))
		b.WriteString(" (SIGTERM, then SIGKILL after the grace period)")
	case res.Interrupted:
		b.WriteString("interrupted: worker shut down during the run")
	default:
		b.WriteString(describe(runErr))
	}
	if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
		b.WriteString("\nstderr")
		if res.StderrTruncated {
			b.WriteString(" (tail)")
		}
		b.WriteString(":\n")
		b.WriteString(stderr)
	}
	return b.String()
}

func hintFor(err error) string {
	switch services.Category(err) {
	case "security_policy":
		return "check the repository name and the base repository folder"
	case "configuration":
		return "set the base repository folder and make sure the repository exists under it"
	case "timeout":
		return "raise execution.timeout_minutes or split the feature"
	case "external_tool":
		return "inspect the stored stderr tail and the tool installation"
	default:
		return "inspect the item error message"
	}
}

func (w *Worker) setLastError(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
}

func (w *Worker) setCurrent(item *store.QueueItem) {
	w.mu.Lock()
	if item != nil {
		copy := *item
		w.current = &copy
	} else {
		w.current = nil
	}
	w.mu.Unlock()
}

// Summary is a snapshot of worker state.
type Summary struct {
	ID      string
	Running bool
	Current *store.QueueItem
	LastErr string
}

// Status returns the current summary.
func (w *Worker) Status() Summary {
	w.mu.RLock()
	defer w.mu.RUnlock()
	summary := Summary{ID: w.id, Running: w.running}
	if w.current != nil {
		copy := *w.current
		summary.Current = &copy
	}
	if w.lastErr != nil {
		summary.LastErr = w.lastErr.Error()
	}
	return summary
}
