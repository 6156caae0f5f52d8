// Package task persists pipeline tasks and their per-step state in SQLite.
//
// A task carries one StepState per pipeline step and the artifact keys its
// steps produced. The aggregated task status is always derived from the step
// states (see Task.Recompute) and written in the same transaction as they are.
// Update is the only read-modify-write path: it runs inside an IMMEDIATE
// transaction so concurrent writers to one task are serialized.
package task
