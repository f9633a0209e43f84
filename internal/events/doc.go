// Package events carries queue and task lifecycle events from the scheduler,
// worker, and task service to whoever is listening.
//
// Producers depend only on the Publisher interface. Discard is the default
// when nothing listens; Bus fans events out to subscriber channels without
// ever blocking the producer. There is no package-level emitter: every
// component receives its Publisher explicitly.
package events
