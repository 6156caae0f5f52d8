package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"shortvideo/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeStorage()
	c.normalizeWorkflow()
	if err := c.normalizePipeline(); err != nil {
		return err
	}
	c.normalizeProviders()
	c.normalizeOpenAI()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ArtifactDir) == "" {
		c.Paths.ArtifactDir = filepath.Join(c.Paths.DataDir, "artifacts")
	}
	if c.Paths.ArtifactDir, err = expandPath(c.Paths.ArtifactDir); err != nil {
		return fmt.Errorf("paths.artifact_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	c.Server.PublicURL = strings.TrimRight(strings.TrimSpace(c.Server.PublicURL), "/")
}

func (c *Config) normalizeStorage() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	if c.Storage.Backend == "r2" || c.Storage.Backend == "minio" {
		c.Storage.Backend = StorageS3
	}
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Endpoint = strings.TrimPrefix(strings.TrimPrefix(c.Storage.Endpoint, "https://"), "http://")
	c.Storage.Endpoint = strings.TrimRight(c.Storage.Endpoint, "/")
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = defaultStorageRegion
	}
	if c.Storage.AccessKeyID == "" {
		if value, ok := os.LookupEnv("S3_ACCESS_KEY_ID"); ok {
			c.Storage.AccessKeyID = value
		}
	}
	if c.Storage.SecretAccessKey == "" {
		if value, ok := os.LookupEnv("S3_SECRET_ACCESS_KEY"); ok {
			c.Storage.SecretAccessKey = value
		}
	}
	c.Storage.AccessKeyID = strings.TrimSpace(c.Storage.AccessKeyID)
	c.Storage.SecretAccessKey = strings.TrimSpace(c.Storage.SecretAccessKey)
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
	if c.Storage.PresignExpirySeconds <= 0 {
		c.Storage.PresignExpirySeconds = defaultPresignExpirySeconds
	}
	if strings.TrimSpace(c.Storage.Tenant) == "" {
		c.Storage.Tenant = defaultTenant
	}
	if strings.TrimSpace(c.Storage.Project) == "" {
		c.Storage.Project = defaultProject
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	c.Workflow.AsyncSteps = normalizeStepList(c.Workflow.AsyncSteps)
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.Workflow.PollInterval <= 0 {
		c.Workflow.PollInterval = defaultPollInterval
	}
	if c.Workflow.RunAllTimeout <= 0 {
		c.Workflow.RunAllTimeout = defaultRunAllTimeout
	}
}

func (c *Config) normalizePipeline() error {
	target, err := language.Normalize(c.Pipeline.TargetLang)
	if err != nil {
		return fmt.Errorf("pipeline.target_lang: %w", err)
	}
	c.Pipeline.TargetLang = target
	source := strings.ToLower(strings.TrimSpace(c.Pipeline.SourceLang))
	if source == "" || source == "auto" {
		c.Pipeline.SourceLang = defaultSourceLang
	} else {
		if c.Pipeline.SourceLang, err = language.Normalize(source); err != nil {
			return fmt.Errorf("pipeline.source_lang: %w", err)
		}
	}
	c.Pipeline.VoiceID = strings.TrimSpace(c.Pipeline.VoiceID)
	if c.Pipeline.VoiceID == "" {
		c.Pipeline.VoiceID = defaultVoiceID
	}
	return nil
}

func (c *Config) normalizeProviders() {
	c.Providers.Resolver = lowerOr(c.Providers.Resolver, defaultResolver)
	c.Providers.Transcriber = lowerOr(c.Providers.Transcriber, defaultTranscriber)
	c.Providers.Translator = lowerOr(c.Providers.Translator, defaultTranslator)
	c.Providers.Synthesizer = lowerOr(c.Providers.Synthesizer, defaultSynthesizer)
	c.Providers.Packager = lowerOr(c.Providers.Packager, defaultPackager)
	c.Providers.DisabledSteps = normalizeStepList(c.Providers.DisabledSteps)
}

func (c *Config) normalizeOpenAI() {
	if c.OpenAI.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.OpenAI.APIKey = value
		}
	}
	c.OpenAI.APIKey = strings.TrimSpace(c.OpenAI.APIKey)
	if c.OpenAI.BaseURL == "" {
		if value, ok := os.LookupEnv("OPENAI_BASE_URL"); ok {
			c.OpenAI.BaseURL = value
		}
	}
	c.OpenAI.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenAI.BaseURL), "/")
	if strings.TrimSpace(c.OpenAI.TranscriptionModel) == "" {
		c.OpenAI.TranscriptionModel = defaultTranscriptionModel
	}
	if strings.TrimSpace(c.OpenAI.TranslationModel) == "" {
		c.OpenAI.TranslationModel = defaultTranslationModel
	}
	if strings.TrimSpace(c.OpenAI.SpeechModel) == "" {
		c.OpenAI.SpeechModel = defaultSpeechModel
	}
	if c.OpenAI.TimeoutSeconds <= 0 {
		c.OpenAI.TimeoutSeconds = defaultOpenAITimeoutSeconds
	}
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = lowerOr(c.Logging.Format, defaultLogFormat)
	c.Logging.Level = lowerOr(c.Logging.Level, defaultLogLevel)
}

func lowerOr(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}

func normalizeStepList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.ToLower(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
