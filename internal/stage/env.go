package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"shortvideo/internal/artifact"
	"shortvideo/internal/logging"
	"shortvideo/internal/services"
	"shortvideo/internal/task"
)

// Env gives a handler access to its task snapshot and the artifact store.
// Outputs are staged under the run's attempt and recorded; the runner
// promotes them once the run finishes and still owns the step.
type Env struct {
	Task    *task.Task
	Store   artifact.Store
	Logger  *slog.Logger
	Attempt int

	mu   sync.Mutex
	refs map[artifact.Kind]artifact.Ref
}

// NewEnv builds an Env over a private copy of t for the given run attempt.
func NewEnv(t *task.Task, store artifact.Store, attempt int, logger *slog.Logger) *Env {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Env{Task: t.Clone(), Store: store, Logger: logger, Attempt: attempt, refs: make(map[artifact.Kind]artifact.Ref)}
}

// Namespace is the artifact namespace of the task.
func (e *Env) Namespace() artifact.Namespace {
	return e.Task.Namespace()
}

// Open streams an upstream artifact. An absent artifact is reported as a
// missing dependency.
func (e *Env) Open(ctx context.Context, kind artifact.Kind) (io.ReadCloser, error) {
	rc, _, err := e.Store.Open(ctx, e.Namespace(), kind)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return nil, services.Wrap(services.ErrMissingDependency, "", "open artifact", string(kind), nil)
		}
		return nil, err
	}
	return rc, nil
}

// ReadAll loads a small upstream artifact (subtitles, text) into memory.
func (e *Env) ReadAll(ctx context.Context, kind artifact.Kind) ([]byte, error) {
	rc, err := e.Open(ctx, kind)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "", "read artifact", string(kind), err)
	}
	return data, nil
}

// Put stages an output artifact and records its ref. Writing the same kind
// twice replaces the earlier staged copy.
func (e *Env) Put(ctx context.Context, kind artifact.Kind, r io.Reader) (artifact.Ref, error) {
	if !e.declares(kind) {
		return artifact.Ref{}, fmt.Errorf("step output %s is not declared", kind)
	}
	ref, err := e.Store.Stage(ctx, e.Namespace(), kind, e.Attempt, r)
	if err != nil {
		return artifact.Ref{}, err
	}
	e.mu.Lock()
	e.refs[kind] = ref
	e.mu.Unlock()
	e.Logger.Debug("artifact staged",
		logging.String("kind", string(kind)),
		logging.String("key", ref.Key),
		logging.Int64("size", ref.Size),
	)
	return ref, nil
}

// Refs returns the stored outputs in declaration order.
func (e *Env) Refs() []artifact.Ref {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]artifact.Ref, 0, len(e.refs))
	for _, step := range task.AllSteps() {
		for _, kind := range step.Outputs() {
			if ref, ok := e.refs[kind]; ok {
				out = append(out, ref)
			}
		}
	}
	return out
}

func (e *Env) declares(kind artifact.Kind) bool {
	for _, step := range task.AllSteps() {
		for _, out := range step.Outputs() {
			if out == kind {
				return true
			}
		}
	}
	return false
}
