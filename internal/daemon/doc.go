// Package daemon hosts the long-running shortvideo process: it holds the
// single-instance lock, starts the workflow manager, and serves the HTTP
// gateway.
//
// The gateway is a chi router under /api. Task creation, listing, and status
// snapshots map directly to workflow.Manager calls. Step triggers answer 200
// with produced artifacts, 202 with a job handle and status URL for queued
// steps, and classified error codes (400, 404, 409, 502, 504) otherwise.
// Artifact downloads stream local content with an attachment disposition or
// redirect to a presigned URL for remote backends.
//
// Every response error is JSON of the form {"error": "..."}. Requests carry an
// X-Request-ID that is propagated into log context.
package daemon
