package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shortvideo/internal/artifact"
	"shortvideo/internal/config"
	"shortvideo/internal/logging"
	"shortvideo/internal/notifications"
	"shortvideo/internal/services"
	"shortvideo/internal/stage"
	"shortvideo/internal/task"
)

// ErrStepBusy reports a trigger for a step that is already queued or running.
var ErrStepBusy = fmt.Errorf("%w: step in progress", services.ErrAlreadyExists)

// Options wires the runner's collaborators.
type Options struct {
	Config     *config.Config
	Repository *task.Repository
	Store      artifact.Store
	Handlers   map[task.Step]stage.Handler
	Notifier   notifications.Service
	Logger     *slog.Logger
}

// Runner enforces the step execution contract: dependency checks, the
// idempotent short-circuit, forced invalidation, timeouts, and a terminal
// status write for every run it starts.
type Runner struct {
	cfg      *config.Config
	repo     *task.Repository
	store    artifact.Store
	handlers map[task.Step]stage.Handler
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time
}

// Claim is a step reserved for execution by Prepare.
type Claim struct {
	Task    *task.Task
	Step    task.Step
	Attempt int
	Status  task.StepStatus
}

// New validates opts and builds a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, errors.New("stageexec: config is required")
	}
	if opts.Repository == nil {
		return nil, errors.New("stageexec: task repository is required")
	}
	if opts.Store == nil {
		return nil, errors.New("stageexec: artifact store is required")
	}
	for _, step := range task.AllSteps() {
		if opts.Handlers[step] == nil {
			return nil, fmt.Errorf("stageexec: no handler for %s", step)
		}
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		cfg:      opts.Config,
		repo:     opts.Repository,
		store:    opts.Store,
		handlers: opts.Handlers,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "stageexec"),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Handlers returns the registered handlers in pipeline order.
func (r *Runner) Handlers() []stage.Handler {
	out := make([]stage.Handler, 0, len(r.handlers))
	for _, step := range task.AllSteps() {
		out = append(out, r.handlers[step])
	}
	return out
}

// Prepare validates a trigger and reserves the step. It returns either a
// claim to execute, or a final outcome when no execution is needed (the
// step's outputs already exist) or possible (the step is disabled).
// Validation failures are returned as errors and leave the task untouched.
func (r *Runner) Prepare(ctx context.Context, id string, step task.Step, force bool, status task.StepStatus) (*Claim, *Outcome, error) {
	handler, ok := r.handlers[step]
	if !ok {
		return nil, nil, services.Wrap(services.ErrValidation, string(step), "trigger", "unknown step", nil)
	}
	snapshot, err := r.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := r.CheckDependencies(ctx, snapshot, step); err != nil {
		return nil, nil, err
	}
	if !force {
		refs, reuse, err := r.existingOutputs(ctx, snapshot, step)
		if err != nil {
			return nil, nil, err
		}
		if reuse {
			out := completed(step, refs, true)
			r.logger.Debug("step outputs reused",
				logging.String(logging.FieldTaskID, id),
				logging.String(logging.FieldStep, string(step)),
			)
			return nil, &out, nil
		}
		if snapshot.Step(step).Status.InFlight() {
			return nil, nil, ErrStepBusy
		}
	}
	if r.cfg.StepDisabled(string(step)) {
		out := r.disable(ctx, id, step)
		return nil, &out, nil
	}
	if status != task.StepQueued {
		status = task.StepProcessing
	}

	var attempt int
	updated, err := r.repo.Update(ctx, id, func(t *task.Task) error {
		if err := dependenciesReady(t, step); err != nil {
			return err
		}
		state := t.Step(step)
		if !force && state.Status.InFlight() {
			return ErrStepBusy
		}
		if force {
			t.Invalidate(step)
			state = t.Step(step)
		}
		now := r.now()
		attempt = state.Attempts + 1
		*state = task.StepState{
			Status:        status,
			Provider:      handler.Provider(),
			Attempts:      attempt,
			LastHeartbeat: &now,
		}
		if status == task.StepProcessing {
			state.StartedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &Claim{Task: updated, Step: step, Attempt: attempt, Status: status}, nil, nil
}

// disable records the step as failed because its tool is switched off.
func (r *Runner) disable(ctx context.Context, id string, step task.Step) Outcome {
	reason := "tool disabled: " + string(step)
	err := services.Wrap(services.ErrConfiguration, string(step), "trigger", reason, nil)
	if _, uerr := r.repo.Update(ctx, id, func(t *task.Task) error {
		now := r.now()
		state := t.Step(step)
		*state = task.StepState{
			Status:     task.StepError,
			Error:      reason,
			ErrorClass: services.ClassConfiguration,
			Attempts:   state.Attempts + 1,
			FinishedAt: &now,
		}
		return nil
	}); uerr != nil {
		return failed(step, uerr)
	}
	out := failed(step, err)
	out.Reason = reason
	return out
}

// Execute runs a claimed step to a terminal state. The final write uses a
// context detached from ctx so cancellation cannot leave the step in flight.
func (r *Runner) Execute(ctx context.Context, claim *Claim) Outcome {
	step := claim.Step
	stageCtx := services.WithStep(services.WithTaskID(ctx, claim.Task.ID), string(step))
	logger := logging.WithContext(stageCtx, r.logger)
	handler := r.handlers[step]

	if claim.Status == task.StepQueued {
		current, err := r.start(stageCtx, claim)
		if err != nil {
			if errors.Is(err, errSuperseded) {
				logger.Info("queued step superseded before start", logging.Int("attempt", claim.Attempt))
			}
			return failed(step, err)
		}
		claim.Task = current
	}

	logger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("provider", handler.Provider()),
		logging.Int("attempt", claim.Attempt),
		logging.String("source", claim.Task.SourceURL),
	)
	started := time.Now()

	runCtx := stageCtx
	if timeout := r.cfg.StepTimeout(string(step)); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(stageCtx, timeout)
		defer cancel()
	}
	env := stage.NewEnv(claim.Task, r.store, claim.Attempt, logger)
	err := invoke(runCtx, handler, env)
	if err == nil {
		err = checkOutputs(step, env.Refs())
	}
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrTimeout) {
		err = services.Wrap(services.ErrTimeout, string(step), "execute", "step timed out", err)
	}

	return r.finish(context.WithoutCancel(stageCtx), logger, claim, env.Refs(), err, time.Since(started))
}

var errSuperseded = errors.New("superseded by a newer run")

// start moves a queued claim to processing unless a forced re-run or the
// watchdog has taken the step over in the meantime.
func (r *Runner) start(ctx context.Context, claim *Claim) (*task.Task, error) {
	return r.repo.Update(ctx, claim.Task.ID, func(t *task.Task) error {
		state := t.Step(claim.Step)
		if state.Attempts != claim.Attempt || state.Status != task.StepQueued {
			return errSuperseded
		}
		now := r.now()
		state.Status = task.StepProcessing
		state.StartedAt = &now
		state.LastHeartbeat = &now
		return nil
	})
}

func invoke(ctx context.Context, handler stage.Handler, env *stage.Env) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("executor crash: %v", rec)
		}
	}()
	return handler.Execute(ctx, env)
}

func checkOutputs(step task.Step, refs []artifact.Ref) error {
	produced := make(map[artifact.Kind]bool, len(refs))
	for _, ref := range refs {
		produced[ref.Kind] = true
	}
	for _, kind := range step.Outputs() {
		if !produced[kind] {
			return services.Wrap(services.ErrStorage, string(step), "execute", fmt.Sprintf("output %s was not produced", kind), nil)
		}
	}
	return nil
}

// finish writes the terminal state. Staged outputs are promoted inside the
// same task transaction that checks the claim, so a run that lost the step
// to a forced re-run or the watchdog can never overwrite the newer outputs.
func (r *Runner) finish(ctx context.Context, logger *slog.Logger, claim *Claim, staged []artifact.Ref, stepErr error, elapsed time.Duration) Outcome {
	step := claim.Step
	var before task.Status
	superseded := false
	promoted := make(map[artifact.Kind]artifact.Ref, len(staged))

	updated, err := r.repo.Update(ctx, claim.Task.ID, func(t *task.Task) error {
		before = t.Status
		state := t.Step(step)
		superseded = state.Attempts != claim.Attempt || !state.Status.InFlight()
		if superseded {
			return nil
		}
		if stepErr == nil {
			ns := t.Namespace()
			for _, ref := range staged {
				if _, done := promoted[ref.Kind]; done {
					continue
				}
				final, perr := r.store.Promote(ctx, ns, ref)
				if perr != nil {
					stepErr = perr
					break
				}
				promoted[ref.Kind] = final
			}
		}
		now := r.now()
		state.FinishedAt = &now
		state.LastHeartbeat = nil
		if stepErr != nil {
			state.Status = task.StepError
			state.Error = services.Reason(stepErr)
			state.ErrorClass = services.Class(stepErr)
			return nil
		}
		for _, ref := range promoted {
			t.Artifacts[ref.Kind] = ref.Key
		}
		state.Status = task.StepReady
		state.Error = ""
		state.ErrorClass = ""
		return nil
	})
	r.discard(ctx, logger, staged, promoted)
	reason := services.Reason(stepErr)
	if err != nil {
		logging.ErrorWithContext(logger, "failed to persist step result", "stage_persist_failure",
			logging.String(logging.FieldErrorHint, "the watchdog will fail the step once its heartbeat lapses"),
			logging.Error(err),
		)
		if stepErr == nil {
			stepErr = err
		}
		return failed(step, stepErr)
	}

	if superseded {
		logger.Info("stage result discarded",
			logging.String(logging.FieldEventType, "stage_superseded"),
			logging.Int("attempt", claim.Attempt),
		)
		if stepErr != nil {
			return failed(step, stepErr)
		}
		return failed(step, errSuperseded)
	}

	if stepErr != nil {
		logger.Error(
			"stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("resolved_status", string(updated.Status)),
			logging.String("error_message", reason),
			logging.Bool("retryable", services.Retryable(stepErr)),
			logging.Duration("elapsed", elapsed),
			logging.Error(stepErr),
		)
		r.publish(ctx, logger, notifications.EventStepFailed, updated, step, reason)
		return failed(step, stepErr)
	}

	refs := make([]artifact.Ref, 0, len(staged))
	for _, ref := range staged {
		refs = append(refs, promoted[ref.Kind])
	}
	logger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("task_status", string(updated.Status)),
		logging.Int("artifacts", len(refs)),
		logging.Duration("elapsed", elapsed),
	)
	if before != task.StatusReady && updated.Status == task.StatusReady {
		r.publish(ctx, logger, notifications.EventTaskReady, updated, step, "")
	}
	return completed(step, refs, false)
}

// discard removes staged outputs that were not promoted.
func (r *Runner) discard(ctx context.Context, logger *slog.Logger, staged []artifact.Ref, promoted map[artifact.Kind]artifact.Ref) {
	for _, ref := range staged {
		if _, ok := promoted[ref.Kind]; ok {
			continue
		}
		if err := r.store.Discard(ctx, ref); err != nil {
			logger.Warn("failed to discard staged artifact",
				logging.String(logging.FieldEventType, "stage_discard_failed"),
				logging.String("key", ref.Key),
				logging.Error(err),
			)
		}
	}
}

func (r *Runner) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, t *task.Task, step task.Step, reason string) {
	payload := notifications.Payload{
		"taskID": t.ID,
		"title":  t.Title,
		"step":   string(step),
		"reason": reason,
	}
	if err := r.notifier.Publish(ctx, event, payload); err != nil {
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
