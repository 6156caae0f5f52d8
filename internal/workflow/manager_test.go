package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"shortvideo/internal/artifact"
	"shortvideo/internal/notifications"
	"shortvideo/internal/services"
	"shortvideo/internal/stageexec"
	"shortvideo/internal/task"
	"shortvideo/internal/testsupport"
	"shortvideo/internal/workflow"
)

const douyinSource = "https://www.douyin.com/video/7301"

func TestFullPipelineProducesPack(t *testing.T) {
	h := newHarness(t, testsupport.WithAsyncSteps())
	tk := h.create(t, douyinSource)
	if tk.Platform != "douyin" || tk.TargetLang != "my" || tk.Status != task.StatusPending {
		t.Fatalf("unexpected created task: %+v", tk)
	}

	h.mustComplete(t, tk.ID, task.StepParse)
	if got := string(h.read(t, tk, artifact.KindRaw)); got != testsupport.FakeMedia(douyinSource) {
		t.Fatalf("raw artifact = %q", got)
	}

	h.mustComplete(t, tk.ID, task.StepSubtitles)
	if origin := string(h.read(t, tk, artifact.KindSubsOrigin)); !strings.Contains(origin, "Hello there") {
		t.Fatalf("origin subtitles missing text: %q", origin)
	}
	if translated := string(h.read(t, tk, artifact.KindSubsMM)); !strings.Contains(translated, "MY: Hello there") {
		t.Fatalf("translated subtitles missing text: %q", translated)
	}

	h.mustComplete(t, tk.ID, task.StepDub)
	req := h.fakes.Synthesizer.LastRequest()
	if req.VoiceID != "mm_female_1" || req.Duration != 6*time.Second || !strings.Contains(req.Text, "MY: Try the noodles") {
		t.Fatalf("unexpected speech request: %+v", req)
	}
	if len(h.read(t, tk, artifact.KindAudioMM)) == 0 {
		t.Fatal("audio artifact is empty")
	}

	h.mustComplete(t, tk.ID, task.StepPack)
	pack := h.read(t, tk, artifact.KindPack)
	prefix := "deliver/packs/" + tk.ID + "/"
	want := []string{
		prefix + "README.md",
		prefix + "audio/voice_my.wav",
		prefix + "manifest.json",
		prefix + "raw/raw.mp4",
		prefix + "subs/mm.srt",
		prefix + "subs/mm.txt",
	}
	got := zipNames(t, pack)
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("pack entries = %v, want %v", got, want)
	}
	if raw := string(zipEntry(t, pack, prefix+"raw/raw.mp4")); raw != testsupport.FakeMedia(douyinSource) {
		t.Fatalf("packed raw video = %q", raw)
	}
	if manifest := string(zipEntry(t, pack, prefix+"manifest.json")); !strings.Contains(manifest, `"pack_type": "capcut_v18"`) {
		t.Fatalf("unexpected manifest: %s", manifest)
	}

	final := h.status(t, tk.ID)
	if final.Status != task.StatusReady || final.LastCompletedStep != task.StepPack {
		t.Fatalf("final status = %s last = %s", final.Status, final.LastCompletedStep)
	}
	if final.Step(task.StepScenes).Status != task.StepAbsent {
		t.Fatalf("scenes should not have run: %+v", final.Step(task.StepScenes))
	}
	if h.notifier.count(notifications.EventTaskReady) != 1 {
		t.Fatalf("expected one task-ready notification, got %d", h.notifier.count(notifications.EventTaskReady))
	}
}

func TestTriggerIsIdempotent(t *testing.T) {
	h := newHarness(t, testsupport.WithAsyncSteps())
	tk := h.create(t, douyinSource)

	first := h.trigger(t, tk.ID, task.StepParse, false)
	second := h.trigger(t, tk.ID, task.StepParse, false)
	if first.Kind != stageexec.OutcomeCompleted || second.Kind != stageexec.OutcomeCompleted {
		t.Fatalf("outcomes = %s, %s", first.Kind, second.Kind)
	}
	if first.Skipped || !second.Skipped {
		t.Fatalf("skipped flags = %v, %v", first.Skipped, second.Skipped)
	}
	if len(first.Artifacts) != 1 || len(second.Artifacts) != 1 || first.Artifacts[0].Key != second.Artifacts[0].Key {
		t.Fatalf("artifact refs differ: %+v vs %+v", first.Artifacts, second.Artifacts)
	}
	if calls := h.fakes.Resolver.Calls(); calls != 1 {
		t.Fatalf("resolver called %d times, want 1", calls)
	}
	if attempts := h.status(t, tk.ID).Step(task.StepParse).Attempts; attempts != 1 {
		t.Fatalf("parse attempts = %d, want 1", attempts)
	}
}

func TestTriggerRerunsWhenOutputsVanish(t *testing.T) {
	h := newHarness(t, testsupport.WithAsyncSteps())
	tk := h.create(t, douyinSource)
	h.mustComplete(t, tk.ID, task.StepParse)

	key, err := tk.Namespace().Key(artifact.KindRaw)
	if err != nil {
		t.Fatal(err)
	}
	if err := removeArtifact(h, key); err != nil {
		t.Fatalf("remove raw: %v", err)
	}
	out := h.trigger(t, tk.ID, task.StepParse, false)
	if out.Kind != stageexec.OutcomeCompleted || out.Skipped {
		t.Fatalf("expected a real re-run, got %+v", out)
	}
	if calls := h.fakes.Resolver.Calls(); calls != 2 {
		t.Fatalf("resolver called %d times, want 2", calls)
	}
}

func TestDependencyOrderIsEnforced(t *testing.T) {
	h := newHarness(t, testsupport.WithAsyncSteps())
	tk := h.create(t, douyinSource)

	_, err := h.mgr.Trigger(context.Background(), tk.ID, task.StepDub, workflow.TriggerOptions{})
	if !errors.Is(err, services.ErrMissingDependency) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected missing dependency error, got %v", err)
	}
	if calls := h.fakes.Synthesizer.Calls(); calls != 0 {
		t.Fatalf("synthesizer called %d times", calls)
	}
	snapshot := h.status(t, tk.ID)
	if snapshot.Status != task.StatusPending || snapshot.Step(task.StepDub).Status != task.StepAbsent {
		t.Fatalf("validation failure changed the task: %s / %s", snapshot.Status, snapshot.Step(task.StepDub).Status)
	}
}

func TestDependencyRaceNeverRunsDownstreamEarly(t *testing.T) {
	h := newHarness(t, testsupport.WithAsyncSteps())
	tk := h.create(t, douyinSource)

	var wg sync.WaitGroup
	var dubErrs int
	var mu sync.Mutex
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = h.mgr.Trigger(context.Background(), tk.ID, task.StepParse, workflow.TriggerOptions{})
		}()
		go func() {
			defer wg.Done()
			if _, err := h.mgr.Trigger(context.Background(), tk.ID, task.StepDub, workflow.TriggerOptions{}); err != nil {
				mu.Lock()
				dubErrs++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if dubErrs != 4 {
		t.Fatalf("dub accepted %d times before subtitles was ready", 4-dubErrs)
	}
	if calls := h.fakes.Synthesizer.Calls(); calls != 0 {
		t.Fatalf("synthesizer called %d times", calls)
	}
}

func TestPackOnFreshTaskListsMissingDependencies(t *testing.T) {
	h := newHarness(t, testsupport.WithAsyncSteps())
	tk := h.create(t, douyinSource)

	_, err := h.mgr.Trigger(context.Background(), tk.ID, task.StepPack, workflow.TriggerOptions{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, dep := range []string{"parse", "subtitles", "dub"} {
		if !strings.Contains(err.Error(), dep) {
			t.Fatalf("error %q does not mention %s", err, dep)
		}
	}
	if got := h.status(t, tk.ID).Status; got != task.StatusPending {
		t.Fatalf("task status = %s, want pending", got)
	}
}

func TestForceInvalidatesDownstreamOnly(t *testing.T) {
	h := newHarness(t, testsupport.WithAsyncSteps())
	tk := h.create(t, douyinSource)
	h.mustComplete(t, tk.ID, task.StepParse, task.StepSubtitles, task.StepDub, task.StepScenes, task.StepPack)
	before := h.status(t, tk.ID)
	if before.Status != task.StatusReady {
		t.Fatalf("status before force = %s", before.Status)
	}

	out := h.trigger(t, tk.ID, task.StepSubtitles, true)
	if out.Kind != stageexec.OutcomeCompleted || out.Skipped {
		t.Fatalf("forced subtitles outcome = %+v", out)
	}
	after := h.status(t, tk.ID)
	if after.Step(task.StepParse).Status != task.StepReady || after.Artifacts[artifact.KindRaw] != before.Artifacts[artifact.KindRaw] {
		t.Fatalf("parse must be untouched: %+v", after.Step(task.StepParse))
	}
	if after.Step(task.StepSubtitles).Status != task.StepReady {
		t.Fatalf("subtitles = %s", after.Step(task.StepSubtitles).Status)
	}
	for _, step := range []task.Step{task.StepDub, task.StepScenes, task.StepPack} {
		if got := after.Step(step).Status; got != task.StepAbsent {
			t.Fatalf("%s = %s, want absent", step, got)
		}
		for _, kind := range step.Outputs() {
			if _, ok := after.Artifacts[kind]; ok {
				t.Fatalf("%s ref should be cleared", kind)
			}
		}
	}
	if after.Status != task.StatusProcessing {
		t.Fatalf("task status after force = %s, want processing", after.Status)
	}
	if calls := h.fakes.Resolver.Calls(); calls != 1 {
		t.Fatalf("resolver called %d times, want 1", calls)
	}
	if calls := h.fakes.Transcriber.Calls(); calls != 2 {
		t.Fatalf("transcriber called %d times, want 2", calls)
	}
}

func TestConcurrentTasksStayIsolated(t *testing.T) {
	h := newHarness(t, testsupport.WithAsyncSteps())
	tasks := make([]*task.Task, 8)
	for i := range tasks {
		tasks[i] = h.create(t, fmt.Sprintf("https://www.tiktok.com/@creator/video/%d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(tasks))
	for _, tk := range tasks {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			out, err := h.mgr.Trigger(context.Background(), id, task.StepParse, workflow.TriggerOptions{})
			if err == nil && out.Kind != stageexec.OutcomeCompleted {
				err = fmt.Errorf("%s: %s", id, out.Reason)
			}
			errs <- err
		}(tk.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
	}
	for _, tk := range tasks {
		if got := string(h.read(t, tk, artifact.KindRaw)); got != testsupport.FakeMedia(tk.SourceURL) {
			t.Fatalf("task %s resolved %q", tk.ID, got)
		}
	}
}

func TestCollaboratorTimeoutFailsStepAndResubmitRecovers(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAsyncSteps())
	cfg.Workflow.SubtitlesTimeout = 1
	h := newHarnessWithConfig(t, cfg)
	tk := h.create(t, douyinSource)
	h.mustComplete(t, tk.ID, task.StepParse)

	release := h.fakes.Transcriber.Block()
	out := h.trigger(t, tk.ID, task.StepSubtitles, false)
	release()
	if out.Kind != stageexec.OutcomeFailed || out.Reason != "timeout" || !out.Retryable {
		t.Fatalf("expected retryable timeout, got %+v", out)
	}
	failed := h.status(t, tk.ID)
	if failed.Status != task.StatusError || failed.Step(task.StepSubtitles).Error != "timeout" {
		t.Fatalf("task after timeout: %s / %+v", failed.Status, failed.Step(task.StepSubtitles))
	}
	if step, reason, ok := failed.Failure(); !ok || step != task.StepSubtitles || reason != "timeout" {
		t.Fatalf("Failure() = %s %q %v", step, reason, ok)
	}
	if h.notifier.count(notifications.EventStepFailed) != 1 {
		t.Fatal("expected a step-failed notification")
	}

	retry := h.trigger(t, tk.ID, task.StepSubtitles, false)
	if retry.Kind != stageexec.OutcomeCompleted {
		t.Fatalf("resubmission outcome = %+v", retry)
	}
	recovered := h.status(t, tk.ID)
	state := recovered.Step(task.StepSubtitles)
	if state.Status != task.StepReady || state.Error != "" || state.Attempts != 2 {
		t.Fatalf("subtitles after resubmission: %+v", state)
	}
	if recovered.Status != task.StatusProcessing {
		t.Fatalf("task status after resubmission = %s", recovered.Status)
	}
}

func TestHandlerPanicBecomesFailure(t *testing.T) {
	h := newHarness(t, testsupport.WithAsyncSteps())
	tk := h.create(t, douyinSource)
	h.mustComplete(t, tk.ID, task.StepParse)

	h.fakes.Transcriber.Panic("boom")
	out := h.trigger(t, tk.ID, task.StepSubtitles, false)
	if out.Kind != stageexec.OutcomeFailed || out.Reason != "executor crash: boom" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if state := h.status(t, tk.ID).Step(task.StepSubtitles); state.Status != task.StepError {
		t.Fatalf("subtitles = %+v", state)
	}
}

func TestEmptyTranscriptIsValidationFailure(t *testing.T) {
	h := newHarness(t, testsupport.WithAsyncSteps())
	tk := h.create(t, douyinSource)
	h.mustComplete(t, tk.ID, task.StepParse)

	h.fakes.Transcriber.Cues = nil
	out := h.trigger(t, tk.ID, task.StepSubtitles, false)
	if out.Kind != stageexec.OutcomeFailed || out.Retryable || !strings.Contains(out.Reason, "transcript is empty") {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if calls := h.fakes.Translator.Calls(); calls != 0 {
		t.Fatalf("translator called %d times", calls)
	}
}

func TestQueuedStepReachesTerminalStatus(t *testing.T) {
	h := newHarness(t)
	tk := h.create(t, douyinSource)
	h.mustComplete(t, tk.ID, task.StepParse)

	out := h.trigger(t, tk.ID, task.StepSubtitles, false)
	if out.Kind != stageexec.OutcomeQueued || out.Job == "" {
		t.Fatalf("expected queued outcome with job, got %+v", out)
	}
	if state := h.waitForStep(t, tk.ID, task.StepSubtitles, 5*time.Second); state.Status != task.StepReady {
		t.Fatalf("subtitles = %+v", state)
	}

	h.fakes.Synthesizer.Fail(services.Wrap(services.ErrCollaborator, "", "speak", "quota exceeded", nil))
	out = h.trigger(t, tk.ID, task.StepDub, false)
	if out.Kind != stageexec.OutcomeQueued {
		t.Fatalf("expected queued dub, got %+v", out)
	}
	state := h.waitForStep(t, tk.ID, task.StepDub, 5*time.Second)
	if state.Status != task.StepError || !strings.Contains(state.Error, "quota exceeded") {
		t.Fatalf("dub = %+v", state)
	}
	if got := h.status(t, tk.ID).Status; got != task.StatusError {
		t.Fatalf("task status = %s, want error", got)
	}
}

func TestBusyStepRejectsSecondTrigger(t *testing.T) {
	h := newHarness(t)
	tk := h.create(t, douyinSource)
	h.mustComplete(t, tk.ID, task.StepParse)

	release := h.fakes.Transcriber.Block()
	defer release()
	h.trigger(t, tk.ID, task.StepSubtitles, false)

	_, err := h.mgr.Trigger(context.Background(), tk.ID, task.StepSubtitles, workflow.TriggerOptions{})
	if !errors.Is(err, stageexec.ErrStepBusy) || !errors.Is(err, services.ErrAlreadyExists) {
		t.Fatalf("expected busy error, got %v", err)
	}
	release()
	if state := h.waitForStep(t, tk.ID, task.StepSubtitles, 5*time.Second); state.Status != task.StepReady {
		t.Fatalf("subtitles = %+v", state)
	}
}

func TestForcedRerunSupersedesRunningStep(t *testing.T) {
	h := newHarness(t)
	tk := h.create(t, douyinSource)
	h.mustComplete(t, tk.ID, task.StepParse)
	h.trigger(t, tk.ID, task.StepSubtitles, false)
	if state := h.waitForStep(t, tk.ID, task.StepSubtitles, 5*time.Second); state.Status != task.StepReady {
		t.Fatalf("subtitles = %+v", state)
	}
	h.fakes.Synthesizer.Audio = func(call int) []byte {
		if call == 1 {
			return []byte("OLD-GENERATION")
		}
		return []byte("NEW-GENERATION")
	}

	release := h.fakes.Synthesizer.Block()
	defer release()
	h.trigger(t, tk.ID, task.StepDub, false)
	waitForCalls(t, &h.fakes.Synthesizer.Fault, 1)
	h.fakes.Synthesizer.Pass()

	out := h.trigger(t, tk.ID, task.StepDub, true)
	if out.Kind != stageexec.OutcomeQueued {
		t.Fatalf("forced trigger = %+v", out)
	}
	state := h.waitForStep(t, tk.ID, task.StepDub, 5*time.Second)
	if state.Status != task.StepReady || state.Attempts != 2 {
		t.Fatalf("dub = %+v", state)
	}

	// The first run finishes after the forced one and must not replace its output.
	release()
	h.waitIdle(t, 5*time.Second)

	snapshot := h.status(t, tk.ID)
	if got := snapshot.Step(task.StepDub); got.Status != task.StepReady || got.Attempts != 2 {
		t.Fatalf("dub after superseded run = %+v", got)
	}
	if got := string(h.read(t, snapshot, artifact.KindAudioMM)); got != "NEW-GENERATION" {
		t.Fatalf("audio = %q, want the forced run's output", got)
	}
	staging := filepath.Join(h.store.Root(), "default", "default", tk.ID, ".staging")
	if _, err := os.Stat(staging); !os.IsNotExist(err) {
		t.Fatalf("superseded output left in staging: %v", err)
	}

	reused := h.trigger(t, tk.ID, task.StepDub, false)
	if !reused.Skipped {
		t.Fatalf("expected reuse, got %+v", reused)
	}
	if got := string(h.read(t, snapshot, artifact.KindAudioMM)); got != "NEW-GENERATION" {
		t.Fatalf("audio after reuse = %q", got)
	}
}

func TestDisabledStepFailsWithoutBlockingTask(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAsyncSteps())
	cfg.Providers.DisabledSteps = []string{"scenes"}
	h := newHarnessWithConfig(t, cfg)
	tk := h.create(t, douyinSource)
	h.mustComplete(t, tk.ID, task.StepParse, task.StepSubtitles)

	out := h.trigger(t, tk.ID, task.StepScenes, false)
	if out.Kind != stageexec.OutcomeFailed || out.Reason != "tool disabled: scenes" || out.Retryable {
		t.Fatalf("unexpected outcome %+v", out)
	}
	snapshot := h.status(t, tk.ID)
	if snapshot.Step(task.StepScenes).Status != task.StepError {
		t.Fatalf("scenes = %+v", snapshot.Step(task.StepScenes))
	}
	if snapshot.Status != task.StatusProcessing {
		t.Fatalf("optional step failure moved task to %s", snapshot.Status)
	}
	if calls := h.fakes.Packager.Calls(); calls != 0 {
		t.Fatalf("packager called %d times", calls)
	}
}

func TestScenesBundle(t *testing.T) {
	h := newHarness(t, testsupport.WithAsyncSteps())
	tk := h.create(t, douyinSource)
	h.mustComplete(t, tk.ID, task.StepParse, task.StepSubtitles, task.StepScenes)

	names := zipNames(t, h.read(t, tk, artifact.KindScenes))
	joined := strings.Join(names, ",")
	for _, want := range []string{"manifest.json", "README.md", "scenes/scene_001/subs.srt", "scenes/scene_001/scene.json"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("scenes bundle %v missing %s", names, want)
		}
	}
}

func TestStartFailsInterruptedSteps(t *testing.T) {
	h := newHarness(t)
	tk := h.create(t, douyinSource)
	if _, err := h.repo.Update(context.Background(), tk.ID, func(t *task.Task) error {
		now := time.Now().UTC()
		t.Step(task.StepParse).Status = task.StepProcessing
		t.Step(task.StepParse).StartedAt = &now
		return nil
	}); err != nil {
		t.Fatalf("seed processing step: %v", err)
	}

	if err := h.mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snapshot := h.status(t, tk.ID)
	state := snapshot.Step(task.StepParse)
	if state.Status != task.StepError || state.Error != task.ReasonInterrupted {
		t.Fatalf("parse = %+v", state)
	}
	if snapshot.Status != task.StatusError {
		t.Fatalf("task status = %s", snapshot.Status)
	}
	if err := h.mgr.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
}

func TestStartRemovesStaleSpoolFiles(t *testing.T) {
	h := newHarness(t)
	leftover := testsupport.WriteFile(t, filepath.Join(h.cfg.Paths.DataDir, ".bundle-4242"), []byte("partial zip"), time.Minute)
	notes := testsupport.WriteFile(t, filepath.Join(h.cfg.Paths.DataDir, "notes.txt"), []byte("keep"), time.Hour)

	if err := h.mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Fatalf("expected leftover spool removed, stat err=%v", err)
	}
	if _, err := os.Stat(notes); err != nil {
		t.Fatalf("expected unrelated file kept: %v", err)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	h := newHarness(t)
	if _, err := h.mgr.Create(context.Background(), workflow.CreateRequest{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty source, got %v", err)
	}
	_, err := h.mgr.Create(context.Background(), workflow.CreateRequest{SourceURL: douyinSource, TargetLang: "not a language"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad language, got %v", err)
	}
	created, err := h.mgr.Create(context.Background(), workflow.CreateRequest{ID: "clip-1", SourceURL: "https://youtu.be/abc"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Platform != "youtube" || created.Tenant != "default" {
		t.Fatalf("unexpected task %+v", created)
	}
	if _, err := h.mgr.Create(context.Background(), workflow.CreateRequest{ID: "clip-1", SourceURL: douyinSource}); !errors.Is(err, services.ErrAlreadyExists) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestTriggerUnknownTask(t *testing.T) {
	h := newHarness(t)
	_, err := h.mgr.Trigger(context.Background(), "missing", task.StepParse, workflow.TriggerOptions{})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func waitForCalls(t *testing.T, f *testsupport.Fault, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for f.Calls() < n {
		if time.Now().After(deadline) {
			t.Fatalf("collaborator calls = %d, want %d", f.Calls(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func removeArtifact(h *harness, key string) error {
	return os.Remove(filepath.Join(h.store.Root(), filepath.FromSlash(key)))
}
