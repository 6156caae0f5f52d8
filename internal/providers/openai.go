package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"shortvideo/internal/config"
	"shortvideo/internal/language"
	"shortvideo/internal/logging"
	"shortvideo/internal/services"
	"shortvideo/internal/subtitles"
)

const (
	translateBatchSize = 40
	maxSpeechInput     = 4096
)

type openAIClient struct {
	client *openai.Client
	cfg    config.OpenAI
	logger *slog.Logger
}

func newOpenAIClient(cfg config.OpenAI, logger *slog.Logger) *openAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &openAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger,
	}
}

func (c *openAIClient) transcriber() *OpenAITranscriber {
	return &OpenAITranscriber{client: c.client, model: c.cfg.TranscriptionModel, logger: c.logger}
}

func (c *openAIClient) translator() *OpenAITranslator {
	return &OpenAITranslator{client: c.client, model: c.cfg.TranslationModel, logger: c.logger}
}

func (c *openAIClient) synthesizer() *OpenAISynthesizer {
	return &OpenAISynthesizer{client: c.client, model: c.cfg.SpeechModel, voices: c.cfg.Voices, logger: c.logger}
}

// OpenAITranscriber uses the audio transcription endpoint with verbose JSON
// output so segment timings are preserved.
type OpenAITranscriber struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

func (t *OpenAITranscriber) Name() string { return "openai" }

func (t *OpenAITranscriber) Transcribe(ctx context.Context, media io.Reader, filename, lang string) ([]subtitles.Cue, error) {
	req := openai.AudioRequest{
		Model:    t.model,
		FilePath: filename,
		Reader:   media,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}
	if lang != "" && lang != "auto" {
		req.Language = lang
	}
	started := time.Now()
	resp, err := t.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, openAIError("transcribe", err)
	}
	cues := make([]subtitles.Cue, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		cues = append(cues, subtitles.Cue{
			Index: len(cues) + 1,
			Start: secondsToDuration(seg.Start),
			End:   secondsToDuration(seg.End),
			Text:  text,
		})
	}
	if len(cues) == 0 && strings.TrimSpace(resp.Text) != "" {
		cues = append(cues, subtitles.Cue{Index: 1, End: secondsToDuration(resp.Duration), Text: strings.TrimSpace(resp.Text)})
	}
	t.logger.Info("transcription completed", logging.Args(
		logging.Int("segments", len(cues)),
		logging.String("detected_language", resp.Language),
		logging.Duration("elapsed", time.Since(started)),
	)...)
	return cues, nil
}

// OpenAITranslator translates cue text in batches with a JSON response contract.
type OpenAITranslator struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

func (t *OpenAITranslator) Name() string { return "openai" }

type translationPayload struct {
	Lines []string `json:"lines"`
}

func (t *OpenAITranslator) Translate(ctx context.Context, cues []subtitles.Cue, targetLang string) ([]subtitles.Cue, error) {
	out := make([]subtitles.Cue, len(cues))
	copy(out, cues)
	target := language.DisplayName(targetLang)

	for start := 0; start < len(cues); start += translateBatchSize {
		end := min(start+translateBatchSize, len(cues))
		lines := make([]string, 0, end-start)
		for _, cue := range cues[start:end] {
			lines = append(lines, cue.Text)
		}
		translated, err := t.translateBatch(ctx, lines, target)
		if err != nil {
			return nil, err
		}
		for i, text := range translated {
			out[start+i].Text = text
		}
	}
	return out, nil
}

func (t *OpenAITranslator) translateBatch(ctx context.Context, lines []string, target string) ([]string, error) {
	input, err := json.Marshal(translationPayload{Lines: lines})
	if err != nil {
		return nil, fmt.Errorf("encode translation request: %w", err)
	}
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf("You translate short-video subtitles into %s. "+
					"Reply with a JSON object {\"lines\": [...]} holding exactly one translated line per input line, in order. "+
					"Keep lines concise and natural for spoken voiceover.", target),
			},
			{Role: openai.ChatMessageRoleUser, Content: string(input)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.2,
	})
	if err != nil {
		return nil, openAIError("translate", err)
	}
	if len(resp.Choices) == 0 {
		return nil, services.Wrap(services.ErrCollaborator, "", "translate", "no choices in response", nil)
	}
	return decodeTranslation(resp.Choices[0].Message.Content, len(lines))
}

func decodeTranslation(content string, want int) ([]string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var payload translationPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &payload); err != nil {
		return nil, services.Wrap(services.ErrCollaborator, "", "translate", "decode response", err)
	}
	if len(payload.Lines) != want {
		return nil, services.Wrap(services.ErrCollaborator, "", "translate",
			fmt.Sprintf("expected %d lines, got %d", want, len(payload.Lines)), nil)
	}
	for i := range payload.Lines {
		payload.Lines[i] = strings.TrimSpace(payload.Lines[i])
	}
	return payload.Lines, nil
}

// OpenAISynthesizer renders speech as WAV through the speech endpoint.
type OpenAISynthesizer struct {
	client *openai.Client
	model  string
	voices map[string]string
	logger *slog.Logger
}

func (s *OpenAISynthesizer) Name() string { return "openai" }

func (s *OpenAISynthesizer) Speak(ctx context.Context, req SpeechRequest) (io.ReadCloser, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, services.Wrap(services.ErrValidation, "", "speak", "no text to synthesize", nil)
	}
	if len([]rune(text)) > maxSpeechInput {
		return nil, services.Wrap(services.ErrCollaborator, "", "speak",
			fmt.Sprintf("transcript exceeds %d characters", maxSpeechInput), nil)
	}
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voiceFor(req.VoiceID)),
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return nil, openAIError("speak", err)
	}
	return resp, nil
}

func (s *OpenAISynthesizer) voiceFor(voiceID string) string {
	if mapped, ok := s.voices[voiceID]; ok && mapped != "" {
		return mapped
	}
	if voiceID == "" {
		return string(openai.VoiceAlloy)
	}
	return voiceID
}

func openAIError(operation string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return services.Wrap(services.ErrCollaborator, "", operation,
			fmt.Sprintf("openai status %d", apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return services.Wrap(services.ErrCollaborator, "", operation,
			fmt.Sprintf("openai status %d", reqErr.HTTPStatusCode), err)
	}
	return services.Wrap(services.ErrCollaborator, "", operation, "openai request failed", err)
}

func secondsToDuration(v float64) time.Duration {
	return time.Duration(v * float64(time.Second)).Round(time.Millisecond)
}

// PingOpenAI lists models to confirm the endpoint is reachable and the key is
// accepted.
func PingOpenAI(ctx context.Context, cfg config.OpenAI) error {
	c := newOpenAIClient(cfg, nil)
	if _, err := c.client.ListModels(ctx); err != nil {
		return openAIError("list models", err)
	}
	return nil
}
