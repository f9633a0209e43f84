// Package services defines shared utilities consumed by the scheduler, the
// worker, and the task operations.
//
// Key responsibilities:
//   - Context helpers that stamp queue item IDs, worker IDs, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures with errors.Is.
package services
