package providers

import (
	"context"

	"shortvideo/internal/subtitles"
)

// Passthrough keeps the origin text as the translation. It backs deployments
// where subtitles already arrive in the target language.
type Passthrough struct{}

func (Passthrough) Name() string { return "passthrough" }

func (Passthrough) Translate(_ context.Context, cues []subtitles.Cue, _ string) ([]subtitles.Cue, error) {
	out := make([]subtitles.Cue, len(cues))
	copy(out, cues)
	return out, nil
}
