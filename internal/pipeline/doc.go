// Package pipeline implements the step handlers for parse, subtitles, dub,
// scenes, and pack on top of the collaborator interfaces in providers.
//
// Handlers are stateless apart from their injected collaborators; the
// runner in stageexec owns preconditions, status transitions, and timeouts.
package pipeline
