// Package main hosts the shortvideo CLI entrypoint and command graph.
//
// The serve command runs the gateway and workflow manager in one process.
// Every other command is a thin HTTP client of that gateway: it creates
// tasks, triggers steps, polls status, and downloads artifacts. Config
// resolution and .env loading happen once per invocation in commandContext.
//
// Keep this package lean: behavior belongs in the internal packages and is
// only surfaced here as commands or flags.
package main
