package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanupResult contains the outcome of a stale file sweep.
type CleanupResult struct {
	Removed []string
	Errors  []CleanupError
}

// RemoveStale deletes regular files in dir whose names match pattern and
// whose modification time is before cutoff. A missing dir is not an error.
func RemoveStale(dir, pattern string, cutoff time.Time) CleanupResult {
	result := CleanupResult{}

	dir = strings.TrimSpace(dir)
	if dir == "" {
		return result
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(pattern, entry.Name()); !ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		result.Removed = append(result.Removed, path)
	}
	return result
}
