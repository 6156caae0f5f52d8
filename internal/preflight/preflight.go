package preflight

import (
	"context"

	"shortvideo/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Remote checks only run when the corresponding backend or provider is selected.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	switch cfg.Storage.Backend {
	case config.StorageS3:
		results = append(results, CheckBucket(ctx, cfg))
	default:
		results = append(results, CheckDirectoryAccess("Artifact directory", cfg.Paths.ArtifactDir))
	}

	if cfg.UsesOpenAI() {
		results = append(results, CheckOpenAI(ctx, cfg.OpenAI))
	}
	results = append(results, CheckDisabledSteps(cfg))
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
