package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"stagehand/internal/config"
	"stagehand/internal/daemon"
	"stagehand/internal/logging"
	"stagehand/internal/logs"
	"stagehand/internal/preflight"
	"stagehand/internal/store"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	LogFile  string
}

// Run starts the stagehand daemon and blocks until SIGINT, SIGTERM, or
// cancellation of cmdCtx.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logFile := opts.LogFile
	if logFile == "" {
		logFile = fmt.Sprintf("stagehand-%s.log", time.Now().UTC().Format("20060102T150405.000Z"))
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg, logFile)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	runID := uuid.NewString()
	logger = logger.With(logging.String(logging.FieldCorrelationID, runID))
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, filepath.Join(cfg.Paths.LogDir, logFile)); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update stagehand.log link: %v\n", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "stagehand.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}
	defer st.Close()

	logPreflight(signalCtx, logger, cfg, st)

	d, err := daemon.New(cfg, st, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("stagehand daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// logPreflight records readiness problems without blocking startup; settings
// can be fixed while the daemon runs.
func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, st *store.Store) {
	settings, err := st.GetSettings(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "settings unavailable for preflight", "preflight_skipped", logging.Error(err))
		return
	}
	results := preflight.RunAll(cfg, settings)
	for _, failed := range preflight.Failed(results) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldErrorHint, "run stagehand doctor"),
			logging.String(logging.FieldImpact, "queued items will fail until this is fixed"),
		)
	}
	logger.Info("preflight complete",
		logging.String(logging.FieldEventType, "preflight_complete"),
		logging.Int("checks", len(results)),
		logging.Bool("worker_enabled", settings.WorkerEnabled),
		logging.String("cli_tool", settings.CLITool),
	)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logs.PointerName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPID returns the pid recorded by a running daemon, or 0 when none is.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(filepath.Join(cfg.Paths.DataDir, "stagehand.pid"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, fmt.Errorf("parse pid file: %w", err)
	}
	return pid, nil
}
