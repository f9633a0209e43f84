// Package daemon coordinates the long-running stagehand process.
//
// It wires the store, the queue scheduler, and the queue worker into a single
// lifecycle with flock-based locking to prevent multiple instances. Both loops
// publish onto one event bus; the daemon journals those events to the log.
//
// Keep orchestration logic here: scanning and execution live in their own
// packages while the daemon focuses on startup, shutdown, and status.
package daemon
