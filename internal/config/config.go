package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	ArtifactDir string `toml:"artifact_dir"`
}

// Server contains the HTTP gateway settings.
type Server struct {
	Bind      string `toml:"bind"`
	PublicURL string `toml:"public_url"`
}

// Storage selects and configures the artifact backend.
type Storage struct {
	Backend              string `toml:"backend"`
	Endpoint             string `toml:"endpoint"`
	Bucket               string `toml:"bucket"`
	Region               string `toml:"region"`
	AccessKeyID          string `toml:"access_key_id"`
	SecretAccessKey      string `toml:"secret_access_key"`
	UseSSL               bool   `toml:"use_ssl"`
	PublicBaseURL        string `toml:"public_base_url"`
	PresignExpirySeconds int    `toml:"presign_expiry_seconds"`
	Tenant               string `toml:"tenant"`
	Project              string `toml:"project"`
}

// Workflow contains orchestration timing and concurrency settings.
type Workflow struct {
	Workers           int      `toml:"workers"`
	AsyncSteps        []string `toml:"async_steps"`
	AutoRun           bool     `toml:"auto_run"`
	HeartbeatInterval int      `toml:"heartbeat_interval"`
	HeartbeatTimeout  int      `toml:"heartbeat_timeout"`
	PollInterval      int      `toml:"poll_interval"`
	RunAllTimeout     int      `toml:"run_all_timeout"`
	ParseTimeout      int      `toml:"parse_timeout"`
	SubtitlesTimeout  int      `toml:"subtitles_timeout"`
	DubTimeout        int      `toml:"dub_timeout"`
	ScenesTimeout     int      `toml:"scenes_timeout"`
	PackTimeout       int      `toml:"pack_timeout"`
}

// Pipeline contains per-task defaults applied at creation time.
type Pipeline struct {
	TargetLang string `toml:"target_lang"`
	SourceLang string `toml:"source_lang"`
	VoiceID    string `toml:"voice_id"`
}

// Providers selects the collaborator implementation for each capability.
type Providers struct {
	Resolver      string   `toml:"resolver"`
	Transcriber   string   `toml:"transcriber"`
	Translator    string   `toml:"translator"`
	Synthesizer   string   `toml:"synthesizer"`
	Packager      string   `toml:"packager"`
	DisabledSteps []string `toml:"disabled_steps"`
}

// OpenAI contains connection settings for the OpenAI-compatible providers.
type OpenAI struct {
	APIKey             string            `toml:"api_key"`
	BaseURL            string            `toml:"base_url"`
	TranscriptionModel string            `toml:"transcription_model"`
	TranslationModel   string            `toml:"translation_model"`
	SpeechModel        string            `toml:"speech_model"`
	Voices             map[string]string `toml:"voices"`
	TimeoutSeconds     int               `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	TaskReady      bool   `toml:"task_ready"`
	StepFailed     bool   `toml:"step_failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and local artifact directories
//   - Server: HTTP gateway bind address
//   - Storage: artifact backend (local or s3-compatible)
//   - Workflow: worker pool, heartbeat watchdog, and step timeouts
//   - Pipeline: per-task defaults (languages, voice)
//   - Providers: collaborator selection per capability
//   - OpenAI: credentials and models for the OpenAI providers
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Storage       Storage       `toml:"storage"`
	Workflow      Workflow      `toml:"workflow"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Providers     Providers     `toml:"providers"`
	OpenAI        OpenAI        `toml:"openai"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("shortvideo.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Paths.ArtifactDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the task database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "tasks.db")
}

// LockPath returns the location of the single-instance daemon lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "shortvideo.lock")
}

// StepTimeout returns the execution timeout configured for a pipeline step.
func (c *Config) StepTimeout(step string) time.Duration {
	var seconds int
	switch step {
	case "parse":
		seconds = c.Workflow.ParseTimeout
	case "subtitles":
		seconds = c.Workflow.SubtitlesTimeout
	case "dub":
		seconds = c.Workflow.DubTimeout
	case "scenes":
		seconds = c.Workflow.ScenesTimeout
	case "pack":
		seconds = c.Workflow.PackTimeout
	}
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// HeartbeatInterval returns the heartbeat cadence for running steps.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Workflow.HeartbeatInterval) * time.Second
}

// HeartbeatTimeout returns the silence period after which the watchdog fails a step.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Workflow.HeartbeatTimeout) * time.Second
}

// PollInterval returns the status polling cadence used while waiting on queued steps.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollInterval) * time.Second
}

// RunAllTimeout returns the bound on a full pipeline run's wait for queued steps.
func (c *Config) RunAllTimeout() time.Duration {
	return time.Duration(c.Workflow.RunAllTimeout) * time.Second
}

// PresignExpiry returns the lifetime of signed download URLs.
func (c *Config) PresignExpiry() time.Duration {
	return time.Duration(c.Storage.PresignExpirySeconds) * time.Second
}

// StepDisabled reports whether the step was switched off in [providers].
func (c *Config) StepDisabled(step string) bool {
	for _, disabled := range c.Providers.DisabledSteps {
		if disabled == step {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
