// Package logging assembles structured slog loggers and formatting helpers used
// across stagehand services.
//
// It owns the console/JSON handlers, centralizes level and output plumbing, and
// exposes context-aware helpers so scheduler and worker code can tag log lines
// with queue item IDs, worker IDs, and correlation IDs. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
