package pipeline

import (
	"context"

	"shortvideo/internal/artifact"
	"shortvideo/internal/logging"
	"shortvideo/internal/providers"
	"shortvideo/internal/scenes"
	"shortvideo/internal/services"
	"shortvideo/internal/stage"
	"shortvideo/internal/task"
)

type scenesHandler struct {
	common
	packager providers.Packager
	options  scenes.Options
}

func (h *scenesHandler) Step() task.Step  { return task.StepScenes }
func (h *scenesHandler) Provider() string { return h.packager.Name() }

// Execute plans scenes from the translated cues and bundles the per-scene
// subtitles with a manifest.
func (h *scenesHandler) Execute(ctx context.Context, env *stage.Env) error {
	step := string(task.StepScenes)
	raw, err := env.ReadAll(ctx, artifact.KindSubsMM)
	if err != nil {
		return err
	}
	cues, err := stage.ParseCues(step, raw)
	if err != nil {
		return err
	}
	ranges, err := scenes.Plan(cues, h.options)
	if err != nil {
		return services.Wrap(services.ErrValidation, step, "plan scenes", "no usable cues", err)
	}

	ns := env.Namespace()
	sourceVideo, _ := ns.Key(artifact.KindRaw)
	files, err := scenes.BuildBundle(scenes.BundleInput{
		TaskID:      env.Task.ID,
		Language:    env.Task.TargetLang,
		SourceVideo: sourceVideo,
		Cues:        cues,
		Ranges:      ranges,
	})
	if err != nil {
		return services.Wrap(services.ErrValidation, step, "build bundle", "", err)
	}
	entries := make([]providers.Entry, 0, len(files))
	for _, f := range files {
		entries = append(entries, memoryEntry(f.Name, f.Data))
	}

	ref, err := bundleTo(ctx, env, h.packager, h.spoolDir, artifact.KindScenes, entries)
	if err != nil {
		return err
	}
	env.Logger.Info("scenes bundled",
		logging.Int("scenes", len(ranges)),
		logging.Int64("size", ref.Size),
	)
	return nil
}

func (h *scenesHandler) HealthCheck(ctx context.Context) stage.Health {
	if health, done := healthCheckContextDone(ctx, task.StepScenes); done {
		return health
	}
	return stage.Healthy(string(task.StepScenes))
}
