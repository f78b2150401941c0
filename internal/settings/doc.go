// Package settings owns the bridge's editable configuration.
//
// Persistence rules and import definitions live in SQLite; the store login
// comes from the YAML config. Provider combines them into an immutable
// Snapshot and swaps it atomically on every change, then notifies its
// subscribers so the pipeline can rebuild.
//
// Every mutation validates before touching the database, so an invalid rule
// or definition never reaches a snapshot.
package settings
