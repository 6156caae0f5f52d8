// Package textutil provides small text helpers for CLI output and file naming:
// filename sanitization and rune-aware truncation for table cells.
package textutil
