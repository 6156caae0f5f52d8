package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shortvideo/internal/logging"
	"shortvideo/internal/services"
	"shortvideo/internal/stageexec"
	"shortvideo/internal/task"
)

// ErrWaitTimeout reports that RunAll gave up waiting on a queued step. The
// step itself is left running.
var ErrWaitTimeout = fmt.Errorf("%w: run-all wait exceeded", services.ErrTimeout)

// RunAllOptions tunes a full pipeline run. Zero values take configured defaults.
type RunAllOptions struct {
	Force        bool
	PollInterval time.Duration
	Timeout      time.Duration
}

// RunAll triggers every step in dependency order, waiting for queued steps
// to reach a terminal status. It stops at the first failed required step;
// a failed optional step is reported and the run carries on. Force applies
// to the first step only, which invalidates everything after it.
func (m *Manager) RunAll(ctx context.Context, id string, opts RunAllOptions) ([]stageexec.Outcome, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = m.cfg.PollInterval()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = m.cfg.RunAllTimeout()
	}
	waitCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	logger := m.logger.With(logging.String(logging.FieldTaskID, id))

	force := opts.Force
	outcomes := make([]stageexec.Outcome, 0, len(task.AllSteps()))
	for _, step := range task.AllSteps() {
		if !force {
			if err := m.awaitInFlight(ctx, waitCtx, id, step, opts.PollInterval); err != nil {
				return outcomes, err
			}
		}
		out, err := m.Trigger(ctx, id, step, TriggerOptions{Force: force})
		force = false
		if err != nil {
			return outcomes, err
		}
		if out.Kind == stageexec.OutcomeQueued {
			out, err = m.awaitQueued(ctx, waitCtx, id, step, out.Job, opts.PollInterval)
			if err != nil {
				return outcomes, err
			}
		}
		outcomes = append(outcomes, out)
		if out.Kind == stageexec.OutcomeFailed && !step.Required() {
			logger.Warn("optional step failed",
				logging.String(logging.FieldStep, string(step)),
				logging.String("reason", out.Reason),
				logging.String(logging.FieldEventType, "run_all_optional_failed"),
			)
			continue
		}
		if out.Kind == stageexec.OutcomeFailed {
			logger.Warn("run-all stopped",
				logging.String(logging.FieldStep, string(step)),
				logging.String("reason", out.Reason),
				logging.String(logging.FieldEventType, "run_all_stopped"),
			)
			return outcomes, nil
		}
	}
	logger.Info("run-all completed", logging.Int("steps", len(outcomes)))
	return outcomes, nil
}

// RunAllAsync starts RunAll in the background and returns its job id.
func (m *Manager) RunAllAsync(id string, opts RunAllOptions) string {
	job := newJobID()
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		ctx := services.WithRequestID(services.WithTaskID(m.baseCtx, id), job)
		if _, err := m.RunAll(ctx, id, opts); err != nil && !errors.Is(err, context.Canceled) {
			logging.WithContext(ctx, m.logger).Warn("background run-all ended with error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "run_all_failed"),
				logging.String(logging.FieldErrorHint, "inspect the task status and resubmit"),
			)
		}
	}()
	return job
}

// awaitInFlight waits for a step started elsewhere (another request or a
// previous run) before RunAll triggers it.
func (m *Manager) awaitInFlight(ctx, waitCtx context.Context, id string, step task.Step, poll time.Duration) error {
	snapshot, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !snapshot.Step(step).Status.InFlight() {
		return nil
	}
	_, err = m.waitTerminal(ctx, waitCtx, id, step, poll)
	return err
}

func (m *Manager) awaitQueued(ctx, waitCtx context.Context, id string, step task.Step, job string, poll time.Duration) (stageexec.Outcome, error) {
	settled, err := m.waitTerminal(ctx, waitCtx, id, step, poll)
	if err != nil {
		return stageexec.Outcome{}, err
	}
	state := *settled.Step(step)
	return stageexec.Settled(step, state, job, m.runner.Outputs(ctx, settled, step)), nil
}

// waitTerminal polls the repository until step leaves queued/processing.
// Expiry of waitCtx maps to ErrWaitTimeout; cancellation of ctx is returned as is.
func (m *Manager) waitTerminal(ctx, waitCtx context.Context, id string, step task.Step, poll time.Duration) (*task.Task, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		snapshot, err := m.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !snapshot.Step(step).Status.InFlight() {
			return snapshot, nil
		}
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, ErrWaitTimeout
		case <-ticker.C:
		}
	}
}
