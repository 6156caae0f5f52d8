// Package api defines wire-format types and converters for the HTTP gateway
// and the CLI. It translates internal task models and step outcomes into
// transport-friendly DTOs so clients never couple to internal types.
//
// # Key Types
//
// Task: snapshot of a task with per-step status, errors, and artifact keys.
//
// StepResponse: the result of triggering a step. Completed responses list
// artifacts with gateway download URLs; queued responses carry the job handle
// and the status URL to poll.
//
// HealthResponse: stage, storage, and database readiness plus pool load.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums (task.Status, task.StepStatus)
// are exposed as lowercase strings. Timestamps use RFC3339 with milliseconds.
// The task-level error is derived from the first required step in error
// rather than stored separately.
package api
