package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"shortvideo/internal/logging"
	"shortvideo/internal/task"
)

// HeartbeatMonitor writes step heartbeats and reclaims stalled steps.
type HeartbeatMonitor struct {
	repo              *task.Repository
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(repo *task.Repository, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		repo:              repo,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimStaleSteps fails running steps that have stopped sending heartbeats.
func (h *HeartbeatMonitor) ReclaimStaleSteps(ctx context.Context) ([]task.StepRef, error) {
	if h.heartbeatTimeout <= 0 {
		return nil, nil
	}
	cutoff := time.Now().UTC().Add(-h.heartbeatTimeout)
	reclaimed, err := h.repo.ReclaimStaleSteps(ctx, cutoff)
	if err != nil {
		return reclaimed, err
	}
	for _, ref := range reclaimed {
		h.logger.Warn("stalled step failed",
			logging.String(logging.FieldTaskID, ref.TaskID),
			logging.String(logging.FieldStep, string(ref.Step)),
			logging.String(logging.FieldEventType, "step_stalled"),
			logging.String(logging.FieldErrorHint, "resubmit the step once the collaborator is healthy"),
		)
	}
	return reclaimed, nil
}

// StartLoop runs a heartbeat updater for one step until context cancellation.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, taskID string, step task.Step) {
	defer wg.Done()
	if h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String("component", "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.repo.TouchHeartbeat(ctx, taskID, step); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("heartbeat update cancelled")
				} else {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			}
		}
	}
}
