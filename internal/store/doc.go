// Package store persists run configuration state in SQLite.
//
// The store records, per run, the policy snapshot taken at ingestion,
// the trigger menu topology (streams, datasets, trigger paths), the
// parameter sets fixed at stream configuration time and the release
// bookkeeping consumed by the release scheduler.
//
// Writes that belong to one configuration unit run inside a single
// transaction via WithTx. Name tables (streams, datasets, trigger
// paths, software versions, storage nodes) intern each name once and
// reference it by id everywhere else.
package store
