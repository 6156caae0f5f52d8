package workflow

import (
	"context"

	"shortvideo/internal/stage"
)

// Health summarizes step readiness, storage, and pool load.
type Health struct {
	Stages      []stage.Health    `json:"stages"`
	Storage     stage.Health      `json:"storage"`
	Database    stage.Health      `json:"database"`
	Providers   map[string]string `json:"providers"`
	ActiveJobs  int               `json:"active_jobs"`
	WaitingJobs int               `json:"waiting_jobs"`
}

// Ready reports whether every component is healthy.
func (h Health) Ready() bool {
	if !h.Storage.Ready || !h.Database.Ready {
		return false
	}
	for _, s := range h.Stages {
		if !s.Ready {
			return false
		}
	}
	return true
}

type bucketChecker interface {
	CheckBucket(ctx context.Context) error
}

// Health runs every handler's health check and probes storage.
func (m *Manager) Health(ctx context.Context) Health {
	handlers := m.runner.Handlers()
	out := Health{
		Stages:      make([]stage.Health, 0, len(handlers)),
		Providers:   m.registry.Describe(),
		ActiveJobs:  m.pool.Active(),
		WaitingJobs: m.pool.Waiting(),
	}
	for _, handler := range handlers {
		health := handler.HealthCheck(ctx)
		if m.cfg.StepDisabled(string(handler.Step())) {
			health = stage.Health{Name: string(handler.Step()), Ready: true, Detail: "disabled"}
		}
		out.Stages = append(out.Stages, health)
	}

	out.Storage = stage.Healthy("storage:" + m.store.Backend())
	if checker, ok := m.store.(bucketChecker); ok {
		if err := checker.CheckBucket(ctx); err != nil {
			out.Storage = stage.Unhealthy(out.Storage.Name, err.Error())
		}
	}
	out.Database = stage.Healthy("database")
	if err := m.repo.Ping(ctx); err != nil {
		out.Database = stage.Unhealthy("database", err.Error())
	}
	return out
}
