package task

import (
	"context"
	"fmt"
	"time"

	"shortvideo/internal/services"
)

// TouchHeartbeat records liveness for an in-flight step.
func (r *Repository) TouchHeartbeat(ctx context.Context, id string, step Step) error {
	if _, err := r.execWithRetry(
		ctx,
		`UPDATE task_steps SET last_heartbeat = ?
         WHERE task_id = ? AND step = ? AND status IN (?, ?)`,
		formatTime(r.now()),
		id,
		string(step),
		StepQueued,
		StepProcessing,
	); err != nil {
		return services.Wrap(services.ErrStorage, string(step), "update heartbeat", id, err)
	}
	return nil
}

// ReclaimStaleSteps fails processing steps whose last heartbeat (or start,
// when none was recorded) is older than cutoff.
func (r *Repository) ReclaimStaleSteps(ctx context.Context, cutoff time.Time) ([]StepRef, error) {
	cutoffStr := formatTime(cutoff)
	refs, err := r.selectSteps(ctx,
		`SELECT task_id, step FROM task_steps
         WHERE status = ? AND COALESCE(last_heartbeat, started_at) IS NOT NULL
           AND COALESCE(last_heartbeat, started_at) < ?`,
		StepProcessing, cutoffStr,
	)
	if err != nil {
		return nil, fmt.Errorf("find stale steps: %w", err)
	}
	return r.failSteps(ctx, refs, ReasonStalled, func(state *StepState) bool {
		if state.Status != StepProcessing {
			return false
		}
		seen := state.LastHeartbeat
		if seen == nil {
			seen = state.StartedAt
		}
		return seen != nil && seen.Before(cutoff)
	})
}

// FailInterrupted marks every queued or processing step as failed. It runs at
// startup, when nothing can still be executing them.
func (r *Repository) FailInterrupted(ctx context.Context) ([]StepRef, error) {
	refs, err := r.selectSteps(ctx,
		`SELECT task_id, step FROM task_steps WHERE status IN (?, ?)`,
		StepQueued, StepProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("find interrupted steps: %w", err)
	}
	return r.failSteps(ctx, refs, ReasonInterrupted, func(state *StepState) bool {
		return state.Status.InFlight()
	})
}

func (r *Repository) selectSteps(ctx context.Context, query string, args ...any) ([]StepRef, error) {
	rows, err := r.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []StepRef
	for rows.Next() {
		var ref StepRef
		var step string
		if err := rows.Scan(&ref.TaskID, &step); err != nil {
			return nil, err
		}
		ref.Step = Step(step)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// failSteps re-checks each candidate under the task's write lock so a step
// that finished in the meantime is left alone.
func (r *Repository) failSteps(ctx context.Context, refs []StepRef, reason string, eligible func(*StepState) bool) ([]StepRef, error) {
	var failed []StepRef
	for _, ref := range refs {
		changed := false
		_, err := r.Update(ctx, ref.TaskID, func(t *Task) error {
			changed = false
			state := t.Step(ref.Step)
			if !eligible(state) {
				return nil
			}
			now := r.now()
			state.Status = StepError
			state.Error = reason
			state.ErrorClass = services.ClassTransient
			state.FinishedAt = &now
			changed = true
			return nil
		})
		if err != nil {
			return failed, err
		}
		if changed {
			failed = append(failed, ref)
		}
	}
	return failed, nil
}
