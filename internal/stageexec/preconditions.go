package stageexec

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shortvideo/internal/artifact"
	"shortvideo/internal/services"
	"shortvideo/internal/task"
)

// CheckDependencies verifies that every upstream step is ready and that its
// outputs resolve in the artifact store. It never modifies the task.
func (r *Runner) CheckDependencies(ctx context.Context, t *task.Task, step task.Step) error {
	var missing []string
	ns := t.Namespace()
	for _, dep := range step.Dependencies() {
		state := t.Step(dep)
		if state.Status != task.StepReady {
			missing = append(missing, fmt.Sprintf("%s (%s)", dep, state.Status))
			continue
		}
		for _, kind := range dep.Outputs() {
			ok, err := r.store.Exists(ctx, ns, kind)
			if err != nil {
				return err
			}
			if !ok {
				missing = append(missing, string(kind))
			}
		}
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrMissingDependency, string(step), "check dependencies",
			"missing "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// dependenciesReady is the cheap status-only re-check performed under the
// task write lock.
func dependenciesReady(t *task.Task, step task.Step) error {
	for _, dep := range step.Dependencies() {
		if state := t.Step(dep); state.Status != task.StepReady {
			return services.Wrap(services.ErrMissingDependency, string(step), "check dependencies",
				fmt.Sprintf("missing %s (%s)", dep, state.Status), nil)
		}
	}
	return nil
}

// existingOutputs returns the refs of a ready step when every output still
// resolves. ok is false when any output is missing.
func (r *Runner) existingOutputs(ctx context.Context, t *task.Task, step task.Step) ([]artifact.Ref, bool, error) {
	if t.Step(step).Status != task.StepReady || !t.HasOutputs(step) {
		return nil, false, nil
	}
	ns := t.Namespace()
	refs := make([]artifact.Ref, 0, len(step.Outputs()))
	for _, kind := range step.Outputs() {
		handle, err := r.store.Resolve(ctx, ns, kind)
		if err != nil {
			if errors.Is(err, artifact.ErrNotFound) {
				return nil, false, nil
			}
			return nil, false, err
		}
		refs = append(refs, handle.Ref)
	}
	return refs, true, nil
}

// Outputs resolves the stored outputs of a step, skipping any that are absent.
func (r *Runner) Outputs(ctx context.Context, t *task.Task, step task.Step) []artifact.Ref {
	refs := make([]artifact.Ref, 0, len(step.Outputs()))
	for _, kind := range step.Outputs() {
		handle, err := r.store.Resolve(ctx, t.Namespace(), kind)
		if err != nil {
			continue
		}
		refs = append(refs, handle.Ref)
	}
	return refs
}
