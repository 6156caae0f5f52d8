package config

import (
	"errors"
	"fmt"
	"strings"
)

var knownSteps = map[string]struct{}{
	"parse":     {},
	"subtitles": {},
	"dub":       {},
	"scenes":    {},
	"pack":      {},
}

var knownProviders = map[string][]string{
	"resolver":    {"http", "file"},
	"transcriber": {"openai"},
	"translator":  {"openai", "passthrough"},
	"synthesizer": {"openai", "silence"},
	"packager":    {"zip"},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateOpenAI(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageLocal:
		if strings.TrimSpace(c.Paths.ArtifactDir) == "" {
			return errors.New("paths.artifact_dir must be set for the local storage backend")
		}
	case StorageS3:
		if c.Storage.Endpoint == "" {
			return errors.New("storage.endpoint must be set for the s3 storage backend")
		}
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set for the s3 storage backend")
		}
		if c.Storage.AccessKeyID == "" || c.Storage.SecretAccessKey == "" {
			return errors.New("storage credentials are required for the s3 backend. Set S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY or edit the [storage] section")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	for _, step := range c.Workflow.AsyncSteps {
		if _, ok := knownSteps[step]; !ok {
			return fmt.Errorf("workflow.async_steps: unknown step %q", step)
		}
	}
	return nil
}

func (c *Config) validateProviders() error {
	selected := map[string]string{
		"resolver":    c.Providers.Resolver,
		"transcriber": c.Providers.Transcriber,
		"translator":  c.Providers.Translator,
		"synthesizer": c.Providers.Synthesizer,
		"packager":    c.Providers.Packager,
	}
	for capability, name := range selected {
		if !contains(knownProviders[capability], name) {
			return fmt.Errorf("providers.%s: unsupported value %q (available: %s)",
				capability, name, strings.Join(knownProviders[capability], ", "))
		}
	}
	for _, step := range c.Providers.DisabledSteps {
		if _, ok := knownSteps[step]; !ok {
			return fmt.Errorf("providers.disabled_steps: unknown step %q", step)
		}
	}
	return nil
}

func (c *Config) validateOpenAI() error {
	if !c.UsesOpenAI() {
		return nil
	}
	if c.OpenAI.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("openai.api_key is required by the selected providers. Set OPENAI_API_KEY env var or edit %s (create with 'shortvideo config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

// UsesOpenAI reports whether any enabled capability is served by an OpenAI provider.
func (c *Config) UsesOpenAI() bool {
	return c.Providers.Transcriber == "openai" && !c.StepDisabled("subtitles") ||
		c.Providers.Translator == "openai" && !c.StepDisabled("subtitles") ||
		c.Providers.Synthesizer == "openai" && !c.StepDisabled("dub")
}

func contains(values []string, value string) bool {
	for _, candidate := range values {
		if candidate == value {
			return true
		}
	}
	return false
}
