package providers

import (
	"fmt"
	"log/slog"

	"shortvideo/internal/config"
	"shortvideo/internal/logging"
	"shortvideo/internal/services"
)

// Registry holds the collaborator chosen for each capability.
type Registry struct {
	Resolver    Resolver
	Transcriber Transcriber
	Translator  Translator
	Synthesizer Synthesizer
	Packager    Packager
}

// NewRegistry builds the providers selected in cfg.Providers.
func NewRegistry(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("providers: config is nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "providers")

	var oa *openAIClient
	openAI := func() *openAIClient {
		if oa == nil {
			oa = newOpenAIClient(cfg.OpenAI, logger)
		}
		return oa
	}

	reg := &Registry{}
	switch cfg.Providers.Resolver {
	case "http":
		reg.Resolver = NewHTTPResolver(nil)
	case "file":
		reg.Resolver = NewFileResolver()
	default:
		return nil, unknownProvider("resolver", cfg.Providers.Resolver)
	}

	switch cfg.Providers.Transcriber {
	case "openai":
		reg.Transcriber = openAI().transcriber()
	default:
		return nil, unknownProvider("transcriber", cfg.Providers.Transcriber)
	}

	switch cfg.Providers.Translator {
	case "openai":
		reg.Translator = openAI().translator()
	case "passthrough":
		reg.Translator = Passthrough{}
	default:
		return nil, unknownProvider("translator", cfg.Providers.Translator)
	}

	switch cfg.Providers.Synthesizer {
	case "openai":
		reg.Synthesizer = openAI().synthesizer()
	case "silence":
		reg.Synthesizer = Silence{}
	default:
		return nil, unknownProvider("synthesizer", cfg.Providers.Synthesizer)
	}

	switch cfg.Providers.Packager {
	case "zip":
		reg.Packager = Zip{}
	default:
		return nil, unknownProvider("packager", cfg.Providers.Packager)
	}

	logger.Debug("providers selected", logging.Args(
		logging.String("resolver", reg.Resolver.Name()),
		logging.String("transcriber", reg.Transcriber.Name()),
		logging.String("translator", reg.Translator.Name()),
		logging.String("synthesizer", reg.Synthesizer.Name()),
		logging.String("packager", reg.Packager.Name()),
	)...)
	return reg, nil
}

// Describe maps each capability to the selected provider name.
func (r *Registry) Describe() map[string]string {
	out := make(map[string]string, 5)
	if r.Resolver != nil {
		out["resolver"] = r.Resolver.Name()
	}
	if r.Transcriber != nil {
		out["transcriber"] = r.Transcriber.Name()
	}
	if r.Translator != nil {
		out["translator"] = r.Translator.Name()
	}
	if r.Synthesizer != nil {
		out["synthesizer"] = r.Synthesizer.Name()
	}
	if r.Packager != nil {
		out["packager"] = r.Packager.Name()
	}
	return out
}

func unknownProvider(capability, name string) error {
	return services.Wrap(services.ErrConfiguration, "", "providers", fmt.Sprintf("unknown %s provider %q", capability, name), nil)
}
