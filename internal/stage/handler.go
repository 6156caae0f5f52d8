package stage

import (
	"context"

	"shortvideo/internal/task"
)

// Handler runs one pipeline step. Execute reads upstream artifacts and writes
// its outputs through the Env; status bookkeeping belongs to the runner.
type Handler interface {
	Step() task.Step
	Provider() string
	Execute(ctx context.Context, env *Env) error
	HealthCheck(ctx context.Context) Health
}
