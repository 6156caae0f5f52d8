package config

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

const (
	defaultConfigPath           = "~/.config/shortvideo/config.toml"
	defaultDataDir              = "~/.local/share/shortvideo"
	defaultLogDir               = "~/.local/share/shortvideo/logs"
	defaultArtifactDir          = "~/.local/share/shortvideo/artifacts"
	defaultServerBind           = "127.0.0.1:8087"
	defaultStorageBackend       = StorageLocal
	defaultStorageRegion        = "auto"
	defaultPresignExpirySeconds = 3600
	defaultTenant               = "default"
	defaultProject              = "default"
	defaultWorkers              = 4
	defaultHeartbeatInterval    = 15
	defaultHeartbeatTimeout     = 120
	defaultPollInterval         = 3
	defaultRunAllTimeout        = 3600
	defaultParseTimeout         = 600
	defaultSubtitlesTimeout     = 1800
	defaultDubTimeout           = 900
	defaultScenesTimeout        = 600
	defaultPackTimeout          = 300
	defaultTargetLang           = "my"
	defaultSourceLang           = "auto"
	defaultVoiceID              = "mm_female_1"
	defaultResolver             = "http"
	defaultTranscriber          = "openai"
	defaultTranslator           = "openai"
	defaultSynthesizer          = "openai"
	defaultPackager             = "zip"
	defaultTranscriptionModel   = "whisper-1"
	defaultTranslationModel     = "gpt-4o-mini"
	defaultSpeechModel          = "tts-1"
	defaultOpenAITimeoutSeconds = 120
	defaultNotifyTimeoutSeconds = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
			ArtifactDir: defaultArtifactDir,
		},
		Server: Server{
			Bind: defaultServerBind,
		},
		Storage: Storage{
			Backend:              defaultStorageBackend,
			Region:               defaultStorageRegion,
			UseSSL:               true,
			PresignExpirySeconds: defaultPresignExpirySeconds,
			Tenant:               defaultTenant,
			Project:              defaultProject,
		},
		Workflow: Workflow{
			Workers:           defaultWorkers,
			AsyncSteps:        []string{"subtitles", "dub"},
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
			PollInterval:      defaultPollInterval,
			RunAllTimeout:     defaultRunAllTimeout,
			ParseTimeout:      defaultParseTimeout,
			SubtitlesTimeout:  defaultSubtitlesTimeout,
			DubTimeout:        defaultDubTimeout,
			ScenesTimeout:     defaultScenesTimeout,
			PackTimeout:       defaultPackTimeout,
		},
		Pipeline: Pipeline{
			TargetLang: defaultTargetLang,
			SourceLang: defaultSourceLang,
			VoiceID:    defaultVoiceID,
		},
		Providers: Providers{
			Resolver:    defaultResolver,
			Transcriber: defaultTranscriber,
			Translator:  defaultTranslator,
			Synthesizer: defaultSynthesizer,
			Packager:    defaultPackager,
		},
		OpenAI: OpenAI{
			TranscriptionModel: defaultTranscriptionModel,
			TranslationModel:   defaultTranslationModel,
			SpeechModel:        defaultSpeechModel,
			Voices: map[string]string{
				"mm_female_1": "nova",
				"mm_male_1":   "onyx",
			},
			TimeoutSeconds: defaultOpenAITimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeoutSeconds,
			TaskReady:      true,
			StepFailed:     true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
