// Package preflight runs start-up checks for directories, the artifact
// backend, and the OpenAI endpoint. The doctor command and the serve command
// both use RunAll so the requirement list lives in one place.
package preflight
