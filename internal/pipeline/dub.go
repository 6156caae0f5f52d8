package pipeline

import (
	"context"

	"shortvideo/internal/artifact"
	"shortvideo/internal/logging"
	"shortvideo/internal/providers"
	"shortvideo/internal/stage"
	"shortvideo/internal/subtitles"
	"shortvideo/internal/task"
)

type dubHandler struct {
	common
	synthesizer providers.Synthesizer
}

func (h *dubHandler) Step() task.Step  { return task.StepDub }
func (h *dubHandler) Provider() string { return h.synthesizer.Name() }

// Execute voices the translated transcript.
func (h *dubHandler) Execute(ctx context.Context, env *stage.Env) error {
	step := string(task.StepDub)
	raw, err := env.ReadAll(ctx, artifact.KindSubsMMText)
	if err != nil {
		return err
	}
	text, err := stage.RequireText(step, "translated transcript", string(raw))
	if err != nil {
		return err
	}

	req := providers.SpeechRequest{
		Text:     text,
		VoiceID:  env.Task.VoiceID,
		Language: env.Task.TargetLang,
	}
	// The SRT only sizes silence output; a missing or broken one is not fatal.
	if srt, err := env.ReadAll(ctx, artifact.KindSubsMM); err == nil {
		if cues, err := subtitles.ParseString(string(srt)); err == nil {
			_, req.Duration = subtitles.Bounds(cues)
		}
	}

	audio, err := h.synthesizer.Speak(ctx, req)
	if err != nil {
		return err
	}
	defer audio.Close()

	ref, err := env.Put(ctx, artifact.KindAudioMM, audio)
	if err != nil {
		return err
	}
	env.Logger.Info("voiceover synthesized",
		logging.String("voice_id", req.VoiceID),
		logging.Int("characters", len([]rune(text))),
		logging.Int64("size", ref.Size),
	)
	return nil
}

func (h *dubHandler) HealthCheck(ctx context.Context) stage.Health {
	if health, done := healthCheckContextDone(ctx, task.StepDub); done {
		return health
	}
	return h.providerHealth(task.StepDub, h.synthesizer.Name())
}
