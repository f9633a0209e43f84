// Package preflight provides readiness checks for the directories and
// external tool binaries stagehand depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll once at startup and logs every failure; a failed
//     check never blocks startup because settings can change at runtime.
//   - The CLI "stagehand doctor" command renders the same results as a table.
package preflight
