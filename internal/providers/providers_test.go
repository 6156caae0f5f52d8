package providers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shortvideo/internal/config"
	"shortvideo/internal/services"
	"shortvideo/internal/subtitles"
)

func TestZipBundle(t *testing.T) {
	var buf bytes.Buffer
	entries := []Entry{
		{Name: "raw/raw.mp4", Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("video")), nil }},
		{Name: "subs/mm.srt", Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("subs")), nil }},
	}
	if err := (Zip{}).Bundle(context.Background(), &buf, entries); err != nil {
		t.Fatalf("Bundle failed: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(zr.File))
	}
	if zr.File[0].Name != "raw/raw.mp4" || zr.File[0].Method != zip.Store {
		t.Fatalf("unexpected first entry: %s method=%d", zr.File[0].Name, zr.File[0].Method)
	}
	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "subs" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestZipBundleRejectsTraversal(t *testing.T) {
	err := (Zip{}).Bundle(context.Background(), io.Discard, []Entry{{Name: "../evil.txt"}})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSilentWAV(t *testing.T) {
	data := SilentWAV(2 * time.Second)
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		t.Fatalf("unexpected header %q", data[:44])
	}
	dataSize := binary.LittleEndian.Uint32(data[40:44])
	if dataSize != 2*16000*2 || len(data) != 44+int(dataSize) {
		t.Fatalf("data size = %d total = %d", dataSize, len(data))
	}
	if short := SilentWAV(0); len(short) != 44+16000*2 {
		t.Fatalf("expected one second minimum, got %d bytes", len(short))
	}
}

func TestPassthroughCopies(t *testing.T) {
	in := []subtitles.Cue{{Index: 1, Text: "hello"}}
	out, err := Passthrough{}.Translate(context.Background(), in, "my")
	if err != nil {
		t.Fatal(err)
	}
	out[0].Text = "changed"
	if in[0].Text != "hello" {
		t.Fatal("passthrough must not alias its input")
	}
}

func TestFileResolver(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(src, []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, source := range []string{src, "file://" + src} {
		rc, err := NewFileResolver().Fetch(context.Background(), source)
		if err != nil {
			t.Fatalf("Fetch(%q) failed: %v", source, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != "media" {
			t.Fatalf("unexpected content %q", data)
		}
	}
	_, err := NewFileResolver().Fetch(context.Background(), filepath.Join(dir, "missing.mp4"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing source, got %v", err)
	}
}

func TestHTTPResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("remote media"))
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(srv.Client())
	rc, err := resolver.Fetch(context.Background(), srv.URL+"/clip.mp4")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "remote media" {
		t.Fatalf("unexpected body %q", data)
	}

	_, err = resolver.Fetch(context.Background(), srv.URL+"/missing")
	if !errors.Is(err, services.ErrCollaborator) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
	_, err = resolver.Fetch(context.Background(), "ftp://example.com/clip.mp4")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeTranslation(t *testing.T) {
	lines, err := decodeTranslation("```json\n{\"lines\": [\" a \", \"b\"]}\n```", 2)
	if err != nil {
		t.Fatalf("decodeTranslation failed: %v", err)
	}
	if lines[0] != "a" || lines[1] != "b" {
		t.Fatalf("unexpected lines %q", lines)
	}
	if _, err := decodeTranslation(`{"lines": ["a"]}`, 2); !errors.Is(err, services.ErrCollaborator) {
		t.Fatalf("expected count mismatch error, got %v", err)
	}
}

func newOpenAITestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("response_format = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"task":"transcribe","language":"english","duration":3.5,"text":"Hello world",
			"segments":[{"id":0,"start":0.0,"end":1.5,"text":" Hello"},{"id":1,"start":1.5,"end":3.5,"text":" world"}]}`))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		var payload translationPayload
		_ = json.Unmarshal([]byte(req.Messages[len(req.Messages)-1].Content), &payload)
		for i := range payload.Lines {
			payload.Lines[i] = "MY:" + strings.TrimSpace(payload.Lines[i])
		}
		content, _ := json.Marshal(payload)
		resp := map[string]any{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": []map[string]any{{
				"index": 0, "finish_reason": "stop",
				"message": map[string]any{"role": "assistant", "content": string(content)},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Voice          string `json:"voice"`
			ResponseFormat string `json:"response_format"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Voice != "nova" || req.ResponseFormat != "wav" {
			t.Errorf("unexpected speech request %+v", req)
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFF-fake"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProviders(t *testing.T) {
	srv := newOpenAITestServer(t)
	cfg := config.Default()
	cfg.OpenAI.APIKey = "test"
	cfg.OpenAI.BaseURL = srv.URL + "/v1"

	reg, err := NewRegistry(&cfg, nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	ctx := context.Background()

	cues, err := reg.Transcriber.Transcribe(ctx, strings.NewReader("audio"), "raw.mp4", "auto")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if len(cues) != 2 || cues[0].Text != "Hello" || cues[1].End != 3500*time.Millisecond {
		t.Fatalf("unexpected cues %#v", cues)
	}

	translated, err := reg.Translator.Translate(ctx, cues, "my")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if translated[0].Text != "MY:Hello" || translated[1].Start != cues[1].Start {
		t.Fatalf("unexpected translation %#v", translated)
	}
	if cues[0].Text != "Hello" {
		t.Fatal("translation must not mutate its input")
	}

	audio, err := reg.Synthesizer.Speak(ctx, SpeechRequest{Text: "MY:Hello", VoiceID: "mm_female_1"})
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	data, _ := io.ReadAll(audio)
	audio.Close()
	if string(data) != "RIFF-fake" {
		t.Fatalf("unexpected audio %q", data)
	}
}

func TestOpenAIErrorsAreCollaboratorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.OpenAI.APIKey = "test"
	cfg.OpenAI.BaseURL = srv.URL + "/v1"
	reg, err := NewRegistry(&cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = reg.Translator.Translate(context.Background(), []subtitles.Cue{{Text: "hi"}}, "my")
	if !errors.Is(err, services.ErrCollaborator) || !services.Retryable(err) {
		t.Fatalf("expected retryable collaborator error, got %v", err)
	}
}

func TestRegistryOfflineProviders(t *testing.T) {
	cfg := config.Default()
	cfg.Providers.Resolver = "file"
	cfg.Providers.Translator = "passthrough"
	cfg.Providers.Synthesizer = "silence"
	reg, err := NewRegistry(&cfg, nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	got := reg.Describe()
	want := map[string]string{
		"resolver": "file", "transcriber": "openai", "translator": "passthrough",
		"synthesizer": "silence", "packager": "zip",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %q, want %q", k, got[k], v)
		}
	}

	cfg.Providers.Packager = "tar"
	if _, err := NewRegistry(&cfg, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
