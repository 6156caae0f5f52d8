package testsupport

import (
	"context"
	"testing"

	"shortvideo/internal/artifact"
	"shortvideo/internal/config"
	"shortvideo/internal/task"
)

// MustOpenRepository opens a task.Repository for tests and registers cleanup.
func MustOpenRepository(t testing.TB, cfg *config.Config) *task.Repository {
	t.Helper()

	repo, err := task.Open(cfg, nil)
	if err != nil {
		t.Fatalf("task.Open: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// MustOpenArtifacts opens a local artifact store under the config's artifact dir.
func MustOpenArtifacts(t testing.TB, cfg *config.Config) *artifact.LocalStore {
	t.Helper()

	store, err := artifact.NewLocalStore(cfg.Paths.ArtifactDir)
	if err != nil {
		t.Fatalf("artifact.NewLocalStore: %v", err)
	}
	return store
}

// NewTask creates a task for tests using the provided repository.
func NewTask(t testing.TB, repo *task.Repository, sourceURL string) *task.Task {
	t.Helper()

	tk := task.New(task.NewID())
	tk.SourceURL = sourceURL
	tk.Platform = task.InferPlatform(sourceURL)
	tk.TargetLang = "my"
	tk.VoiceID = "mm_female_1"
	created, err := repo.Create(context.Background(), tk)
	if err != nil {
		t.Fatalf("repo.Create: %v", err)
	}
	return created
}
