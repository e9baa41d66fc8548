// Package services defines shared utilities consumed by the intake pipeline
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session, file, and correlation identifiers
//     for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent file statuses (failed vs review).
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform across components.
package services
