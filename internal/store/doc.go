// Package store persists projects, audio tracks, generated images, and
// composition jobs in SQLite.
//
// The Store manages database connections, schema initialization, busy
// retries, and the conditional status transitions the approval registry and
// job scheduler rely on. Every transition is expressed as an UPDATE guarded by
// the expected current status so concurrent callers observe exactly one
// winner. A partial unique index keeps at most one queued or running job per
// project.
//
// Treat this package as the single source of truth for record state; when
// you add columns, update schema.sql and bump schemaVersion.
package store
