// Package api exposes the intake pipeline as a single operation surface. It
// wires the registry, blob store, ingestor, orchestrator, review queue, and
// decision processor behind one Service and translates internal models into
// transport-friendly DTOs that the CLI and other consumers can render without
// coupling to internal types.
//
// # Key Types
//
// SessionView: transport representation of a session with per-status file
// counts and, on the status operation, the full file list.
//
// FileView: one staged file with its processing state, match state, and
// review flags.
//
// UploadReport/ProcessReport: aggregate outcomes of the upload-files and
// process-session operations, including parser batch statistics and per-file
// failures.
//
// ReviewCaseView/DecisionView/BulkApproveView: the admin review surface.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums are exposed as lowercase
// strings. Timestamps use RFC3339 with milliseconds. Errors cross the
// boundary unchanged so callers can classify them with the services
// sentinels.
package api
