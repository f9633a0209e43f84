// Command stagehand manages feature tasks through stakeholder review and
// development, and runs the queue that hands ready features to an external
// code-generation tool.
//
// Every command opens the SQLite store directly; the daemon command runs the
// scheduler and worker loops in the foreground.
package main
