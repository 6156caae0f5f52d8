package pipeline

import (
	"context"
	"os"
	"strings"

	"shortvideo/internal/config"
	"shortvideo/internal/providers"
	"shortvideo/internal/scenes"
	"shortvideo/internal/stage"
	"shortvideo/internal/task"
)

// Handlers returns one handler per pipeline step wired to the registry's
// collaborators.
func Handlers(cfg *config.Config, reg *providers.Registry) map[task.Step]stage.Handler {
	c := common{
		sourceLang: cfg.Pipeline.SourceLang,
		spoolDir:   SpoolDir(cfg),
		openAIKey:  strings.TrimSpace(cfg.OpenAI.APIKey) != "",
	}
	return map[task.Step]stage.Handler{
		task.StepParse:     &parseHandler{common: c, resolver: reg.Resolver},
		task.StepSubtitles: &subtitlesHandler{common: c, transcriber: reg.Transcriber, translator: reg.Translator},
		task.StepDub:       &dubHandler{common: c, synthesizer: reg.Synthesizer},
		task.StepScenes:    &scenesHandler{common: c, packager: reg.Packager, options: scenes.DefaultOptions()},
		task.StepPack:      &packHandler{common: c, packager: reg.Packager},
	}
}

type common struct {
	sourceLang string
	spoolDir   string
	openAIKey  bool
}

// SpoolPattern matches the temp files bundles are assembled in.
const SpoolPattern = ".bundle-*"

// SpoolDir is where bundles are assembled before upload.
func SpoolDir(cfg *config.Config) string {
	if cfg == nil || strings.TrimSpace(cfg.Paths.DataDir) == "" {
		return os.TempDir()
	}
	return cfg.Paths.DataDir
}

// providerHealth reports a provider as unhealthy when it needs OpenAI
// credentials that are not configured.
func (c common) providerHealth(step task.Step, names ...string) stage.Health {
	for _, name := range names {
		if name == "openai" && !c.openAIKey {
			return stage.Unhealthy(string(step), "openai api key not configured")
		}
	}
	return stage.Healthy(string(step))
}

func healthCheckContextDone(ctx context.Context, step task.Step) (stage.Health, bool) {
	if err := ctx.Err(); err != nil {
		return stage.Unhealthy(string(step), err.Error()), true
	}
	return stage.Health{}, false
}
