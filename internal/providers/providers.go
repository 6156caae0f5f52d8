package providers

import (
	"context"
	"io"
	"time"

	"shortvideo/internal/subtitles"
)

// Resolver turns a source reference into a media stream.
type Resolver interface {
	Name() string
	Fetch(ctx context.Context, source string) (io.ReadCloser, error)
}

// Transcriber converts speech in a media stream to timed cues.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, media io.Reader, filename, language string) ([]subtitles.Cue, error)
}

// Translator rewrites cue text into the target language, keeping timing.
type Translator interface {
	Name() string
	Translate(ctx context.Context, cues []subtitles.Cue, targetLang string) ([]subtitles.Cue, error)
}

// SpeechRequest describes one voiceover to synthesize.
type SpeechRequest struct {
	Text     string
	VoiceID  string
	Language string
	// Duration is the transcript length; providers that cannot speak use it
	// to size their output.
	Duration time.Duration
}

// Synthesizer renders text to WAV audio.
type Synthesizer interface {
	Name() string
	Speak(ctx context.Context, req SpeechRequest) (io.ReadCloser, error)
}

// Entry is one file placed into an archive.
type Entry struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// Packager bundles entries into an archive written to w.
type Packager interface {
	Name() string
	Bundle(ctx context.Context, w io.Writer, entries []Entry) error
}
