package task_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"shortvideo/internal/artifact"
	"shortvideo/internal/services"
	"shortvideo/internal/task"
	"shortvideo/internal/testsupport"
)

func TestCreateAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	repo := testsupport.MustOpenRepository(t, cfg)
	ctx := context.Background()

	created := testsupport.NewTask(t, repo, "https://www.tiktok.com/@demo/video/1")
	if created.Status != task.StatusPending {
		t.Fatalf("new task status = %s", created.Status)
	}

	fetched, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Platform != "tiktok" || fetched.Tenant != "default" || fetched.TargetLang != "my" {
		t.Fatalf("unexpected fetched task: %#v", fetched)
	}
	for _, step := range task.AllSteps() {
		if got := fetched.Step(step).Status; got != task.StepAbsent {
			t.Fatalf("step %s = %s, want absent", step, got)
		}
	}
	if fetched.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}
}

func TestCreateDuplicateID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	repo := testsupport.MustOpenRepository(t, cfg)

	tk := task.New("dup000000001")
	tk.SourceURL = "https://example.com/a.mp4"
	if _, err := repo.Create(context.Background(), tk); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	_, err := repo.Create(context.Background(), tk)
	if !errors.Is(err, services.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCreateRejectsUnsafeID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	repo := testsupport.MustOpenRepository(t, cfg)

	tk := task.New("../escape")
	tk.SourceURL = "https://example.com/a.mp4"
	_, err := repo.Create(context.Background(), tk)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetUnknownTask(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	repo := testsupport.MustOpenRepository(t, cfg)

	_, err := repo.Get(context.Background(), "nope")
	if !errors.Is(err, task.ErrNotFound) || !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = repo.Update(context.Background(), "nope", func(*task.Task) error { return nil })
	if !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("expected not found from Update, got %v", err)
	}
}

func TestUpdatePersistsStepsAndArtifacts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	repo := testsupport.MustOpenRepository(t, cfg)
	ctx := context.Background()
	created := testsupport.NewTask(t, repo, "https://example.com/a.mp4")

	started := time.Now().UTC().Add(-time.Minute)
	updated, err := repo.Update(ctx, created.ID, func(tk *task.Task) error {
		state := tk.Step(task.StepParse)
		state.Status = task.StepReady
		state.Provider = "http"
		state.Attempts = 1
		state.StartedAt = &started
		tk.Artifacts[artifact.KindRaw] = "default/default/" + tk.ID + "/raw/raw.mp4"
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Status != task.StatusProcessing || updated.LastCompletedStep != task.StepParse {
		t.Fatalf("status not recomputed: %s last=%s", updated.Status, updated.LastCompletedStep)
	}

	fetched, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	parse := fetched.Step(task.StepParse)
	if parse.Status != task.StepReady || parse.Provider != "http" || parse.Attempts != 1 {
		t.Fatalf("unexpected parse state: %#v", parse)
	}
	if parse.StartedAt == nil || !parse.StartedAt.Equal(started) {
		t.Fatalf("started_at not round-tripped: %v", parse.StartedAt)
	}
	if fetched.Artifacts[artifact.KindRaw] == "" {
		t.Fatal("expected raw artifact key to persist")
	}

	// Clearing a key removes it from storage.
	if _, err := repo.Update(ctx, created.ID, func(tk *task.Task) error {
		tk.Invalidate(task.StepParse)
		return nil
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	fetched, _ = repo.Get(ctx, created.ID)
	if _, ok := fetched.Artifacts[artifact.KindRaw]; ok || fetched.Status != task.StatusPending {
		t.Fatalf("expected cleared task, got %#v", fetched)
	}
}

func TestUpdateMutateErrorLeavesTaskUnchanged(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	repo := testsupport.MustOpenRepository(t, cfg)
	ctx := context.Background()
	created := testsupport.NewTask(t, repo, "https://example.com/a.mp4")

	sentinel := errors.New("refused")
	_, err := repo.Update(ctx, created.ID, func(tk *task.Task) error {
		tk.Step(task.StepParse).Status = task.StepError
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	fetched, _ := repo.Get(ctx, created.ID)
	if fetched.Step(task.StepParse).Status != task.StepAbsent || fetched.Status != task.StatusPending {
		t.Fatalf("mutation leaked: %#v", fetched.Step(task.StepParse))
	}
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	repo := testsupport.MustOpenRepository(t, cfg)
	ctx := context.Background()
	created := testsupport.NewTask(t, repo, "https://example.com/a.mp4")

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, created.ID, func(tk *task.Task) error {
				tk.Step(task.StepParse).Attempts++
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	fetched, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := fetched.Step(task.StepParse).Attempts; got != writers {
		t.Fatalf("attempts = %d, want %d (lost update)", got, writers)
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	repo := testsupport.MustOpenRepository(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		testsupport.NewTask(t, repo, fmt.Sprintf("https://www.tiktok.com/v/%d", i))
	}
	for i := 0; i < 3; i++ {
		testsupport.NewTask(t, repo, fmt.Sprintf("https://youtu.be/%d", i))
	}

	all, total, err := repo.List(ctx, task.Filter{}, task.Page{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 8 || len(all) != 8 {
		t.Fatalf("expected 8 tasks, got total=%d len=%d", total, len(all))
	}

	page, total, err := repo.List(ctx, task.Filter{Platform: "tiktok"}, task.Page{Number: 2, Size: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("expected page of 2 out of 5, got total=%d len=%d", total, len(page))
	}
	for _, tk := range page {
		if tk.Platform != "tiktok" {
			t.Fatalf("filter leaked platform %q", tk.Platform)
		}
		if len(tk.Steps) != len(task.AllSteps()) {
			t.Fatalf("expected steps loaded, got %d", len(tk.Steps))
		}
	}

	_, total, err = repo.List(ctx, task.Filter{Status: task.StatusReady}, task.Page{})
	if err != nil || total != 0 {
		t.Fatalf("expected no ready tasks, got total=%d err=%v", total, err)
	}

	counts, err := repo.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if counts[task.StatusPending] != 8 {
		t.Fatalf("summary pending = %d", counts[task.StatusPending])
	}
}

func TestReclaimStaleSteps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	repo := testsupport.MustOpenRepository(t, cfg)
	ctx := context.Background()

	stale := testsupport.NewTask(t, repo, "https://example.com/stale.mp4")
	fresh := testsupport.NewTask(t, repo, "https://example.com/fresh.mp4")

	old := time.Now().UTC().Add(-10 * time.Minute)
	for _, id := range []string{stale.ID, fresh.ID} {
		if _, err := repo.Update(ctx, id, func(tk *task.Task) error {
			tk.Step(task.StepParse).Status = task.StepReady
			state := tk.Step(task.StepSubtitles)
			state.Status = task.StepProcessing
			state.StartedAt = &old
			state.LastHeartbeat = &old
			return nil
		}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
	if err := repo.TouchHeartbeat(ctx, fresh.ID, task.StepSubtitles); err != nil {
		t.Fatalf("TouchHeartbeat failed: %v", err)
	}

	reclaimed, err := repo.ReclaimStaleSteps(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStaleSteps failed: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0].TaskID != stale.ID || reclaimed[0].Step != task.StepSubtitles {
		t.Fatalf("unexpected reclaimed set: %#v", reclaimed)
	}

	got, _ := repo.Get(ctx, stale.ID)
	state := got.Step(task.StepSubtitles)
	if state.Status != task.StepError || state.Error != task.ReasonStalled {
		t.Fatalf("stale step not failed: %#v", state)
	}
	if got.Status != task.StatusError {
		t.Fatalf("task status = %s, want error", got.Status)
	}

	got, _ = repo.Get(ctx, fresh.ID)
	if got.Step(task.StepSubtitles).Status != task.StepProcessing {
		t.Fatalf("fresh step should still be processing: %#v", got.Step(task.StepSubtitles))
	}
}

func TestFailInterrupted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	repo := testsupport.MustOpenRepository(t, cfg)
	ctx := context.Background()
	created := testsupport.NewTask(t, repo, "https://example.com/a.mp4")

	if _, err := repo.Update(ctx, created.ID, func(tk *task.Task) error {
		tk.Step(task.StepParse).Status = task.StepReady
		tk.Step(task.StepSubtitles).Status = task.StepQueued
		return nil
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	failed, err := repo.FailInterrupted(ctx)
	if err != nil {
		t.Fatalf("FailInterrupted failed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected one interrupted step, got %#v", failed)
	}
	got, _ := repo.Get(ctx, created.ID)
	if state := got.Step(task.StepSubtitles); state.Status != task.StepError || state.Error != task.ReasonInterrupted {
		t.Fatalf("unexpected state: %#v", state)
	}
	if got.Step(task.StepParse).Status != task.StepReady {
		t.Fatal("ready step must not be touched")
	}
}

func TestDelete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	repo := testsupport.MustOpenRepository(t, cfg)
	ctx := context.Background()
	created := testsupport.NewTask(t, repo, "https://example.com/a.mp4")

	if err := repo.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, created.ID); !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := repo.Delete(ctx, created.ID); !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
