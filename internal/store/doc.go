// Package store persists repositories, features, tasks, task transitions,
// queue items, and settings in SQLite.
//
// Every status change is a single conditional statement (or, for tasks, a
// guarded UPDATE plus its transition insert in one transaction). Claims use
// UPDATE ... RETURNING over the oldest pending row, so concurrent workers in
// one process or many never receive the same item. Busy and snapshot
// conflicts from concurrent writers are retried with bounded backoff.
//
// Schema changes bump schemaVersion in schema.go; there are no in-place
// migrations, users move the database aside to adopt a new schema.
package store
