package workflow

import (
	"context"
	"sync"

	"shortvideo/internal/logging"
	"shortvideo/internal/services"
	"shortvideo/internal/stageexec"
	"shortvideo/internal/task"
)

// TriggerOptions modifies a step trigger.
type TriggerOptions struct {
	// Force discards the step's outputs and everything downstream before running.
	Force bool
}

// Trigger runs one step for a task. Synchronous steps return completed or
// failed; async steps are validated, marked queued, and return a job handle.
// Validation errors (unknown task, missing dependency, busy step) are returned
// as errors and never change the task.
func (m *Manager) Trigger(ctx context.Context, id string, step task.Step, opts TriggerOptions) (stageexec.Outcome, error) {
	status := task.StepProcessing
	if m.async[step] {
		status = task.StepQueued
	}
	claim, done, err := m.runner.Prepare(ctx, id, step, opts.Force, status)
	if err != nil {
		return stageexec.Outcome{}, err
	}
	if done != nil {
		return *done, nil
	}

	if claim.Status == task.StepQueued {
		job := newJobID()
		m.submit(job, claim)
		return stageexec.Queued(step, job), nil
	}
	// Steps are not cancelled mid-flight; only their own timeout bounds them.
	return m.execute(context.WithoutCancel(ctx), claim), nil
}

func (m *Manager) submit(job string, claim *stageexec.Claim) {
	logger := m.logger.With(
		logging.String(logging.FieldTaskID, claim.Task.ID),
		logging.String(logging.FieldStep, string(claim.Step)),
		logging.String("job", job),
	)
	logger.Info("step queued", logging.String(logging.FieldEventType, "step_queued"))
	m.pool.Submit(m.baseCtx, func(ctx context.Context) {
		ctx = services.WithRequestID(ctx, job)
		out := m.execute(ctx, claim)
		logger.Debug("job finished", logging.String("outcome", string(out.Kind)))
	})
}

// execute runs a claim with a heartbeat loop alongside it.
func (m *Manager) execute(ctx context.Context, claim *stageexec.Claim) stageexec.Outcome {
	hbCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &wg, claim.Task.ID, claim.Step)
	out := m.runner.Execute(ctx, claim)
	cancel()
	wg.Wait()
	return out
}
