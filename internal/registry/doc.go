// Package registry persists intake sessions, staged files, patients, and
// stored documents in SQLite.
//
// The registry is the system of record for the batch pipeline: session and
// file rows advance through closed status sets, patients accumulate across
// sessions, and documents enforce content-hash uniqueness so the same scan
// can never be stored twice. All SQL lives here; callers work with typed
// models and never see database/sql.
package registry
