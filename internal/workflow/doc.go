// Package workflow decides how task status may change.
//
// Two pipelines share one finite-state table. The review pipeline walks a task
// past each stakeholder (product director, architect, UI/UX expert, security
// officer) until it is ReadyForDevelopment; any rejection parks it in
// NeedsRefinement until someone resets it. The development pipeline then moves
// it through ToDo, InProgress, InReview and InQA to Done, with NeedsChanges as
// the rework loop.
//
// Validation functions are pure. The Apply functions mutate the Task in memory
// (review slot, transition log, status) and leave persistence to the caller,
// which must guard the write on the status it read.
package workflow
