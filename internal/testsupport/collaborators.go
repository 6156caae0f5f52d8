package testsupport

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"shortvideo/internal/providers"
	"shortvideo/internal/subtitles"
)

// Fault counts calls to a fake collaborator and injects failures or blocking.
type Fault struct {
	calls atomic.Int64

	mu    sync.Mutex
	err   error
	panic any
	gate  chan struct{}
}

// Calls returns how many times the collaborator was invoked.
func (f *Fault) Calls() int { return int(f.calls.Load()) }

// Fail makes subsequent calls return err. Fail(nil) restores success.
func (f *Fault) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// Panic makes subsequent calls panic with value.
func (f *Fault) Panic(value any) {
	f.mu.Lock()
	f.panic = value
	f.mu.Unlock()
}

// Block holds subsequent calls until the returned release func is called or
// the caller's context ends.
func (f *Fault) Block() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gate == gate {
				f.gate = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Pass lets subsequent calls through while calls already held by Block stay
// held until their release func runs.
func (f *Fault) Pass() {
	f.mu.Lock()
	f.gate = nil
	f.mu.Unlock()
}

// enter returns the 1-based number of this call.
func (f *Fault) enter(ctx context.Context) (int, error) {
	call := int(f.calls.Add(1))
	f.mu.Lock()
	err, panicValue, gate := f.err, f.panic, f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return call, ctx.Err()
		}
	}
	if panicValue != nil {
		panic(panicValue)
	}
	return call, err
}

// FakeResolver returns Media, or "media:<source>" when Media is nil so
// tests can tell sources apart.
type FakeResolver struct {
	Fault
	Media []byte
}

func (r *FakeResolver) Name() string { return "fake" }

func (r *FakeResolver) Fetch(ctx context.Context, source string) (io.ReadCloser, error) {
	if _, err := r.enter(ctx); err != nil {
		return nil, err
	}
	if r.Media == nil {
		return io.NopCloser(strings.NewReader(FakeMedia(source))), nil
	}
	return io.NopCloser(bytes.NewReader(r.Media)), nil
}

// FakeMedia is the payload FakeResolver returns for source.
func FakeMedia(source string) string {
	return "media:" + source
}

// FakeTranscriber returns fixed cues after draining the media.
type FakeTranscriber struct {
	Fault
	Cues []subtitles.Cue
}

func (t *FakeTranscriber) Name() string { return "fake" }

func (t *FakeTranscriber) Transcribe(ctx context.Context, media io.Reader, _, _ string) ([]subtitles.Cue, error) {
	if _, err := t.enter(ctx); err != nil {
		return nil, err
	}
	if _, err := io.Copy(io.Discard, media); err != nil {
		return nil, err
	}
	return append([]subtitles.Cue(nil), t.Cues...), nil
}

// FakeTranslator prefixes each cue with the upper-cased target language.
type FakeTranslator struct {
	Fault
}

func (t *FakeTranslator) Name() string { return "fake" }

func (t *FakeTranslator) Translate(ctx context.Context, cues []subtitles.Cue, target string) ([]subtitles.Cue, error) {
	if _, err := t.enter(ctx); err != nil {
		return nil, err
	}
	out := make([]subtitles.Cue, len(cues))
	for i, cue := range cues {
		cue.Text = strings.ToUpper(target) + ": " + cue.Text
		out[i] = cue
	}
	return out, nil
}

// FakeSynthesizer returns a short silent WAV, or Audio(call) when set, and
// records the last request.
type FakeSynthesizer struct {
	Fault
	Audio func(call int) []byte
	mu    sync.Mutex
	last  providers.SpeechRequest
}

func (s *FakeSynthesizer) Name() string { return "fake" }

func (s *FakeSynthesizer) Speak(ctx context.Context, req providers.SpeechRequest) (io.ReadCloser, error) {
	call, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.last = req
	audio := s.Audio
	s.mu.Unlock()
	if audio != nil {
		return io.NopCloser(bytes.NewReader(audio(call))), nil
	}
	return io.NopCloser(bytes.NewReader(providers.SilentWAV(time.Second))), nil
}

// LastRequest returns the most recent speech request.
func (s *FakeSynthesizer) LastRequest() providers.SpeechRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// FakePackager counts calls and delegates to the zip packager.
type FakePackager struct {
	Fault
}

func (p *FakePackager) Name() string { return "fake" }

func (p *FakePackager) Bundle(ctx context.Context, w io.Writer, entries []providers.Entry) error {
	if _, err := p.enter(ctx); err != nil {
		return err
	}
	return providers.Zip{}.Bundle(ctx, w, entries)
}

// Fakes bundles one fake per capability.
type Fakes struct {
	Resolver    *FakeResolver
	Transcriber *FakeTranscriber
	Translator  *FakeTranslator
	Synthesizer *FakeSynthesizer
	Packager    *FakePackager
}

// DefaultCues is the transcript returned by NewFakes: three short lines
// spanning six seconds.
func DefaultCues() []subtitles.Cue {
	return []subtitles.Cue{
		{Index: 1, Start: 0, End: 2 * time.Second, Text: "Hello there"},
		{Index: 2, Start: 2 * time.Second, End: 4 * time.Second, Text: "Welcome to the market"},
		{Index: 3, Start: 4 * time.Second, End: 6 * time.Second, Text: "Try the noodles"},
	}
}

// NewFakes returns working fakes with default media and transcript.
func NewFakes() *Fakes {
	return &Fakes{
		Resolver:    &FakeResolver{},
		Transcriber: &FakeTranscriber{Cues: DefaultCues()},
		Translator:  &FakeTranslator{},
		Synthesizer: &FakeSynthesizer{},
		Packager:    &FakePackager{},
	}
}

// Registry exposes the fakes as a provider registry.
func (f *Fakes) Registry() *providers.Registry {
	return &providers.Registry{
		Resolver:    f.Resolver,
		Transcriber: f.Transcriber,
		Translator:  f.Translator,
		Synthesizer: f.Synthesizer,
		Packager:    f.Packager,
	}
}
