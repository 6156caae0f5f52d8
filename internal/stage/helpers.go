package stage

import (
	"strings"

	"shortvideo/internal/services"
	"shortvideo/internal/subtitles"
)

// ParseCues decodes an SRT artifact. Malformed or empty subtitles are a
// validation failure the caller fixes by regenerating the upstream step.
func ParseCues(step string, raw []byte) ([]subtitles.Cue, error) {
	cues, err := subtitles.ParseString(string(raw))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, step, "parse subtitles",
			"Subtitle artifact is malformed; rerun subtitles with force", err)
	}
	if len(cues) == 0 {
		return nil, services.Wrap(services.ErrValidation, step, "parse subtitles", "subtitle artifact has no cues", nil)
	}
	return cues, nil
}

// RequireText fails with a validation error when text is blank.
func RequireText(step, what, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", services.Wrap(services.ErrValidation, step, "read input", what+" is empty", nil)
	}
	return text, nil
}
