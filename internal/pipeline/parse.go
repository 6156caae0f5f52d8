package pipeline

import (
	"context"
	"strings"

	"shortvideo/internal/artifact"
	"shortvideo/internal/logging"
	"shortvideo/internal/providers"
	"shortvideo/internal/services"
	"shortvideo/internal/stage"
	"shortvideo/internal/task"
)

type parseHandler struct {
	common
	resolver providers.Resolver
}

func (h *parseHandler) Step() task.Step  { return task.StepParse }
func (h *parseHandler) Provider() string { return h.resolver.Name() }

// Execute downloads the source into the raw video artifact.
func (h *parseHandler) Execute(ctx context.Context, env *stage.Env) error {
	source := strings.TrimSpace(env.Task.SourceURL)
	if source == "" {
		return services.Wrap(services.ErrValidation, string(task.StepParse), "fetch source", "task has no source", nil)
	}
	body, err := h.resolver.Fetch(ctx, source)
	if err != nil {
		return err
	}
	defer body.Close()

	ref, err := env.Put(ctx, artifact.KindRaw, body)
	if err != nil {
		return err
	}
	env.Logger.Info("source fetched",
		logging.String("platform", env.Task.Platform),
		logging.Int64("size", ref.Size),
	)
	return nil
}

func (h *parseHandler) HealthCheck(ctx context.Context) stage.Health {
	if health, done := healthCheckContextDone(ctx, task.StepParse); done {
		return health
	}
	if h.resolver == nil {
		return stage.Unhealthy(string(task.StepParse), "resolver unavailable")
	}
	return stage.Healthy(string(task.StepParse))
}
