// Package client is the CLI's view of a running daemon: a small HTTP client
// over the gateway routes that decodes responses into api DTOs and maps error
// status codes back onto the services error markers.
package client
