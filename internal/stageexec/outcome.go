package stageexec

import (
	"shortvideo/internal/artifact"
	"shortvideo/internal/services"
	"shortvideo/internal/task"
)

// OutcomeKind classifies the result of triggering a step.
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeQueued    OutcomeKind = "queued"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome is the transient result of one step invocation. It is not
// persisted; the task record carries the durable state.
type Outcome struct {
	Step      task.Step
	Kind      OutcomeKind
	Artifacts []artifact.Ref
	// Skipped is set when existing outputs were reused without running the step.
	Skipped   bool
	Job       string
	Reason    string
	Retryable bool
	Err       error
}

func completed(step task.Step, refs []artifact.Ref, skipped bool) Outcome {
	return Outcome{Step: step, Kind: OutcomeCompleted, Artifacts: refs, Skipped: skipped}
}

// Queued builds the acknowledgment for a step handed to the worker pool.
func Queued(step task.Step, job string) Outcome {
	return Outcome{Step: step, Kind: OutcomeQueued, Job: job}
}

func failed(step task.Step, err error) Outcome {
	return Outcome{
		Step:      step,
		Kind:      OutcomeFailed,
		Reason:    services.Reason(err),
		Retryable: services.Retryable(err),
		Err:       err,
	}
}

// Settled converts the terminal state of a step that ran in the background
// into an outcome. refs are the step's stored outputs.
func Settled(step task.Step, state task.StepState, job string, refs []artifact.Ref) Outcome {
	if state.Status == task.StepReady {
		out := completed(step, refs, false)
		out.Job = job
		return out
	}
	class := state.ErrorClass
	if class == "" && state.Error == "timeout" {
		class = services.ClassTimeout
	}
	out := failed(step, services.FromClass(class, string(step), state.Error))
	out.Reason = state.Error
	out.Job = job
	return out
}
