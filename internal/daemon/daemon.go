package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"stagehand/internal/config"
	"stagehand/internal/events"
	"stagehand/internal/logging"
	"stagehand/internal/scheduler"
	"stagehand/internal/store"
	"stagehand/internal/worker"
)

// Daemon runs the scheduler and worker and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	bus       *events.Bus
	scheduler *scheduler.Scheduler
	worker    *worker.Worker

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	journal sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Scheduler    scheduler.Summary
	Worker       worker.Summary
	Queue        map[store.QueueStatus]int
	DatabasePath string
	LockFilePath string
}

// Option configures a Daemon.
type Option func(*options)

type options struct {
	worker []worker.Option
}

// WithWorkerOptions forwards options to the queue worker.
func WithWorkerOptions(opts ...worker.Option) Option {
	return func(o *options) {
		o.worker = append(o.worker, opts...)
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	bus := events.NewBus(256)
	workerOpts := append([]worker.Option{worker.WithPublisher(bus)}, o.worker...)
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		bus:       bus,
		scheduler: scheduler.New(cfg, st, logger, scheduler.WithPublisher(bus)),
		worker:    worker.New(cfg, st, logger, workerOpts...),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the scheduler and worker.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another stagehand daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.startJournal(runCtx)

	if err := d.worker.Start(runCtx); err != nil {
		d.abortStart(cancel)
		return fmt.Errorf("start worker: %w", err)
	}
	if err := d.scheduler.Start(runCtx); err != nil {
		d.worker.Stop()
		d.abortStart(cancel)
		return fmt.Errorf("start scheduler: %w", err)
	}

	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	d.running.Store(true)
	d.logger.Info("stagehand daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldWorkerID, d.worker.ID()),
	)
	return nil
}

func (d *Daemon) abortStart(cancel context.CancelFunc) {
	cancel()
	d.journal.Wait()
	_ = d.lock.Unlock()
}

// startJournal logs every bus event until ctx ends.
func (d *Daemon) startJournal(ctx context.Context) {
	ch, _ := d.bus.Subscribe(ctx)
	logger := logging.NewComponentLogger(d.logger, "events")
	d.journal.Add(1)
	go func() {
		defer d.journal.Done()
		for evt := range ch {
			attrs := []logging.Attr{logging.String(logging.FieldEventType, string(evt.Kind))}
			if evt.ItemID != 0 {
				attrs = append(attrs, logging.Int64(logging.FieldItemID, evt.ItemID))
			}
			if evt.RepoName != "" {
				attrs = append(attrs, logging.String(logging.FieldRepo, evt.RepoName))
			}
			if evt.FeatureSlug != "" {
				attrs = append(attrs, logging.String(logging.FieldFeature, evt.FeatureSlug))
			}
			if evt.Kind == events.KindScanCompleted {
				attrs = append(attrs, logging.Int("enqueued", evt.Count))
			}
			logger.Debug("event", logging.Args(attrs...)...)
		}
	}()
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.scheduler.Stop()
	d.worker.Stop()

	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.journal.Wait()

	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a stale lock file may remain until the process exits"),
		)
	}
	d.running.Store(false)
	d.logger.Info("stagehand daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the event bus. The store belongs to the
// caller.
func (d *Daemon) Close() {
	d.Stop()
	d.bus.Close()
}

// Events returns the bus both loops publish to.
func (d *Daemon) Events() *events.Bus {
	return d.bus
}

// LockPath returns the single-instance lock file.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// Status returns the current daemon status. Queue counts are omitted when
// the store cannot be read.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Scheduler:    d.scheduler.Status(),
		Worker:       d.worker.Status(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if stats, err := d.store.QueueStats(ctx); err == nil {
		status.Queue = stats
	}
	return status
}
