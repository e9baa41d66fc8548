// Package pipeline drives intake sessions from raw uploads to archived,
// patient-linked documents.
//
// The Ingestor stages uploads: it validates each path against the configured
// extension and size limits, copies the bytes into content-addressed storage,
// parses the filename convention, and records one registry row per file. The
// Orchestrator processes a staged session: it claims the session under a
// data-directory lock, reclaims work orphaned by interrupted runs, and fans
// pending files out to a fixed pool of workers. Each worker runs one file at
// a time through duplicate detection, identity matching, routing by
// confidence, document creation, and optional content indexing, capturing any
// failure as terminal state on that file alone.
//
// Session aggregation and completion notifications happen after every
// dispatched file settles; per-file failures never abort the run.
package pipeline
