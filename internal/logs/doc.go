// Package logs reads the daemon log for the CLI.
//
// The daemon writes one timestamped file per start and repoints
// stagehand.log in the log directory at it. Last reads the tail of the
// current file; Follow keeps streaming and switches files when the pointer
// moves after a restart.
package logs
