package pipeline

import (
	"context"
	"strings"

	"shortvideo/internal/artifact"
	"shortvideo/internal/logging"
	"shortvideo/internal/providers"
	"shortvideo/internal/services"
	"shortvideo/internal/stage"
	"shortvideo/internal/subtitles"
	"shortvideo/internal/task"
)

type subtitlesHandler struct {
	common
	transcriber providers.Transcriber
	translator  providers.Translator
}

func (h *subtitlesHandler) Step() task.Step { return task.StepSubtitles }

func (h *subtitlesHandler) Provider() string {
	return h.transcriber.Name() + "+" + h.translator.Name()
}

// Execute transcribes the raw video, translates the cues, and stores the
// origin SRT, the translated SRT, and the translated plain text.
func (h *subtitlesHandler) Execute(ctx context.Context, env *stage.Env) error {
	step := string(task.StepSubtitles)
	media, err := env.Open(ctx, artifact.KindRaw)
	if err != nil {
		return err
	}
	origin, err := h.transcriber.Transcribe(ctx, media, artifact.KindRaw.FileName(), h.sourceLang)
	media.Close()
	if err != nil {
		return err
	}
	origin, stats := subtitles.Clean(origin)
	if stats.RemovedCues > 0 {
		env.Logger.Debug("dropped credit cues", logging.Int("removed", stats.RemovedCues))
	}
	if len(origin) == 0 {
		return services.Wrap(services.ErrValidation, step, "transcribe", "transcript is empty", nil)
	}

	translated, err := h.translator.Translate(ctx, origin, env.Task.TargetLang)
	if err != nil {
		return err
	}
	if len(translated) == 0 {
		return services.Wrap(services.ErrCollaborator, step, "translate", "translation returned no cues", nil)
	}

	outputs := []struct {
		kind    artifact.Kind
		content string
	}{
		{artifact.KindSubsOrigin, subtitles.Format(origin)},
		{artifact.KindSubsMM, subtitles.Format(translated)},
		{artifact.KindSubsMMText, subtitles.PlainText(translated)},
	}
	for _, out := range outputs {
		if _, err := env.Put(ctx, out.kind, strings.NewReader(out.content)); err != nil {
			return err
		}
	}
	env.Logger.Info("subtitles generated",
		logging.Int("origin_cues", len(origin)),
		logging.Int("translated_cues", len(translated)),
		logging.String("target_lang", env.Task.TargetLang),
	)
	return nil
}

func (h *subtitlesHandler) HealthCheck(ctx context.Context) stage.Health {
	if health, done := healthCheckContextDone(ctx, task.StepSubtitles); done {
		return health
	}
	return h.providerHealth(task.StepSubtitles, h.transcriber.Name(), h.translator.Name())
}
