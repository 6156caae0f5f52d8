package testsupport

import (
	"path/filepath"
	"testing"

	"shortvideo/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ArtifactDir = filepath.Join(base, "artifacts")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.OpenAI.APIKey = "test"
	cfgVal.Workflow.Workers = 2
	cfgVal.Workflow.HeartbeatInterval = 1
	cfgVal.Workflow.HeartbeatTimeout = 5
	cfgVal.Workflow.PollInterval = 1
	cfgVal.Workflow.RunAllTimeout = 30

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAsyncSteps overrides which steps run on the worker pool.
func WithAsyncSteps(steps ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.AsyncSteps = append([]string(nil), steps...)
	}
}

// WithOfflineProviders selects providers that need no network access.
func WithOfflineProviders() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Providers.Resolver = "file"
		b.cfg.Providers.Translator = "passthrough"
		b.cfg.Providers.Synthesizer = "silence"
	}
}

// WithNtfyTopic enables notifications against the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
		b.cfg.Notifications.TaskReady = true
		b.cfg.Notifications.StepFailed = true
	}
}

// BaseDir returns a directory under the test's temp root, creating nothing.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
