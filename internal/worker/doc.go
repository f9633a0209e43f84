// Package worker claims queued features and runs the configured code
// generation tool against the feature's repository.
//
// Every run is validated before anything is spawned: the tool must be on the
// allow-list, a base repository folder must be configured, and the
// repository must resolve to a directory inside that folder after symlinks
// are followed. The tool is started from an argument vector, never a shell,
// in its own process group with the repository as working directory. Runs
// that exceed the timeout get SIGTERM, then SIGKILL after the grace period.
// Captured stderr is redacted and capped by the store before it is saved.
//
// A failed item stays failed. Retrying is an operator decision.
package worker
