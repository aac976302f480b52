// Package services defines shared utilities consumed by the composition core
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, project IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (validation, conflict, not found, resource, external service, render,
//     cancellation) so the scheduler and HTTP layer can map them uniformly.
//
// Use these helpers when wiring new components so operational behaviour
// (error classification, observability) stays uniform across the pipeline.
package services
