package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"shortvideo/internal/artifact"
	"shortvideo/internal/language"
	"shortvideo/internal/logging"
	"shortvideo/internal/providers"
	"shortvideo/internal/services"
	"shortvideo/internal/stage"
	"shortvideo/internal/subtitles"
	"shortvideo/internal/task"
)

const (
	packVersion   = "1.8"
	packType      = "capcut_v18"
	packRawVideo  = "raw/raw.mp4"
	packVoice     = "audio/voice_my.wav"
	packSubtitles = "subs/mm.srt"
	packText      = "subs/mm.txt"
)

const packReadme = `CapCut pack usage (%s)

1. Create a new CapCut project and import the extracted zip files.
2. Place %s on the video track.
3. Import %s and adjust styling.
4. Place %s on the audio track and align with subtitles.
5. Add transitions or stickers as needed.
`

type packManifest struct {
	Version  string            `json:"version"`
	PackType string            `json:"pack_type"`
	TaskID   string            `json:"task_id"`
	Language string            `json:"language"`
	Assets   map[string]string `json:"assets"`
}

type packHandler struct {
	common
	packager providers.Packager
}

func (h *packHandler) Step() task.Step  { return task.StepPack }
func (h *packHandler) Provider() string { return h.packager.Name() }

// Execute bundles the raw video, translated subtitles, and voiceover into the
// deliverable archive under deliver/packs/<task>/.
func (h *packHandler) Execute(ctx context.Context, env *stage.Env) error {
	step := string(task.StepPack)
	prefix := path.Join("deliver", "packs", env.Task.ID)

	srt, err := env.ReadAll(ctx, artifact.KindSubsMM)
	if err != nil {
		return err
	}
	text, err := h.transcriptText(ctx, env, srt)
	if err != nil {
		return err
	}

	manifest, err := json.MarshalIndent(packManifest{
		Version:  packVersion,
		PackType: packType,
		TaskID:   env.Task.ID,
		Language: env.Task.TargetLang,
		Assets: map[string]string{
			"raw_video": packRawVideo,
			"voice":     packVoice,
			"subtitle":  packSubtitles,
			"text":      packText,
		},
	}, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrValidation, step, "encode manifest", "", err)
	}
	readme := fmt.Sprintf(packReadme, language.DisplayName(env.Task.TargetLang), packRawVideo, packSubtitles, packVoice)

	entries := []providers.Entry{
		artifactEntry(ctx, env, path.Join(prefix, packRawVideo), artifact.KindRaw),
		artifactEntry(ctx, env, path.Join(prefix, packVoice), artifact.KindAudioMM),
		memoryEntry(path.Join(prefix, packSubtitles), srt),
		memoryEntry(path.Join(prefix, packText), text),
		memoryEntry(path.Join(prefix, "manifest.json"), manifest),
		memoryEntry(path.Join(prefix, "README.md"), []byte(readme)),
	}
	ref, err := bundleTo(ctx, env, h.packager, h.spoolDir, artifact.KindPack, entries)
	if err != nil {
		return err
	}
	env.Logger.Info("pack bundled",
		logging.Int("entries", len(entries)),
		logging.Int64("size", ref.Size),
	)
	return nil
}

// transcriptText prefers the stored plain text and derives it from the SRT
// when that artifact is missing.
func (h *packHandler) transcriptText(ctx context.Context, env *stage.Env, srt []byte) ([]byte, error) {
	ok, err := env.Store.Exists(ctx, env.Namespace(), artifact.KindSubsMMText)
	if err != nil {
		return nil, err
	}
	if ok {
		return env.ReadAll(ctx, artifact.KindSubsMMText)
	}
	cues, err := stage.ParseCues(string(task.StepPack), srt)
	if err != nil {
		return nil, err
	}
	return []byte(subtitles.PlainText(cues)), nil
}

func (h *packHandler) HealthCheck(ctx context.Context) stage.Health {
	if health, done := healthCheckContextDone(ctx, task.StepPack); done {
		return health
	}
	return stage.Healthy(string(task.StepPack))
}
