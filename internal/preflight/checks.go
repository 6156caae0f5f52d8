package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"shortvideo/internal/artifact"
	"shortvideo/internal/config"
	"shortvideo/internal/providers"
	"shortvideo/internal/services"
)

// CheckOpenAI verifies that the OpenAI endpoint is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt.
func CheckOpenAI(ctx context.Context, cfg config.OpenAI) Result {
	const name = "OpenAI"
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := providers.PingOpenAI(checkCtx, cfg); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckBucket verifies the configured S3-compatible bucket exists and is reachable.
func CheckBucket(ctx context.Context, cfg *config.Config) Result {
	const name = "Artifact bucket"
	store, err := artifact.NewFromConfig(cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	s3, ok := store.(*artifact.S3Store)
	if !ok {
		return Result{Name: name, Passed: true, Detail: "local backend"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s3.CheckBucket(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", cfg.Storage.Bucket)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDisabledSteps reports switched-off steps. Disabling the optional
// scenes step passes; disabling a required step fails because no task could
// reach ready.
func CheckDisabledSteps(cfg *config.Config) Result {
	const name = "Pipeline steps"
	if len(cfg.Providers.DisabledSteps) == 0 {
		return Result{Name: name, Passed: true, Detail: "all enabled"}
	}
	detail := "disabled: " + strings.Join(cfg.Providers.DisabledSteps, ", ")
	for _, step := range cfg.Providers.DisabledSteps {
		if step != "scenes" {
			return Result{Name: name, Detail: detail + " (tasks cannot complete)"}
		}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// summarizeError returns a concise, user-friendly description of a remote
// check failure.
func summarizeError(err error) string {
	if err == nil {
		return ""
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "connection timed out"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "connection timed out"
	}
	if errors.Is(err, services.ErrConfiguration) {
		return "configuration rejected: " + err.Error()
	}
	msg := err.Error()
	if len(msg) > 160 {
		msg = msg[:160] + "..."
	}
	return msg
}
