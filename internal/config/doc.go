// Package config loads, normalizes, and validates shortvideo configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY and the S3 credentials, optionally seeded from .env files.
// The Config type centralizes every knob the daemon and CLI need so storage,
// provider selection, and workflow timing are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical provider names, and clear validation errors.
package config
