// Package scheduler finds features whose tasks have all cleared review and
// queues one execution per feature.
//
// The loop re-reads the stored settings on every tick, so interval and
// worker-enabled changes apply without a restart. Idempotency comes from the
// store: Enqueue returns the existing active item for a feature instead of
// creating a second one. A feature that already ran is queued again only
// after one of its tasks changes.
package scheduler
