package artifact

import (
	"fmt"

	"shortvideo/internal/config"
)

// NewFromConfig builds the configured backend.
func NewFromConfig(cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("artifact store: config is nil")
	}
	switch cfg.Storage.Backend {
	case config.StorageS3:
		return NewS3Store(S3Options{
			Endpoint:        cfg.Storage.Endpoint,
			Bucket:          cfg.Storage.Bucket,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			UseSSL:          cfg.Storage.UseSSL,
			PublicBaseURL:   cfg.Storage.PublicBaseURL,
			PresignExpiry:   cfg.PresignExpiry(),
		})
	default:
		return NewLocalStore(cfg.Paths.ArtifactDir)
	}
}
