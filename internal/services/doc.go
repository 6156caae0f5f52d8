// Package services defines shared utilities consumed by the pipeline step
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, step names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent step outcomes and gateway responses.
//
// Use these helpers when wiring new step logic so operational behaviour (error
// handling, observability) stays uniform across the pipeline.
package services
