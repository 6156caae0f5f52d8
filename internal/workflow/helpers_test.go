package workflow_test

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"shortvideo/internal/artifact"
	"shortvideo/internal/config"
	"shortvideo/internal/notifications"
	"shortvideo/internal/stageexec"
	"shortvideo/internal/task"
	"shortvideo/internal/testsupport"
	"shortvideo/internal/workflow"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

func (r *recordingNotifier) count(event notifications.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

type harness struct {
	cfg      *config.Config
	repo     *task.Repository
	store    *artifact.LocalStore
	fakes    *testsupport.Fakes
	notifier *recordingNotifier
	mgr      *workflow.Manager
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	return newHarnessWithConfig(t, testsupport.NewConfig(t, opts...))
}

func newHarnessWithConfig(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	repo := testsupport.MustOpenRepository(t, cfg)
	store := testsupport.MustOpenArtifacts(t, cfg)
	fakes := testsupport.NewFakes()
	notifier := &recordingNotifier{}
	mgr, err := workflow.NewManager(workflow.Options{
		Config:     cfg,
		Repository: repo,
		Store:      store,
		Registry:   fakes.Registry(),
		Notifier:   notifier,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(mgr.Stop)
	return &harness{cfg: cfg, repo: repo, store: store, fakes: fakes, notifier: notifier, mgr: mgr}
}

func (h *harness) create(t *testing.T, source string) *task.Task {
	t.Helper()
	created, err := h.mgr.Create(context.Background(), workflow.CreateRequest{SourceURL: source})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return created
}

func (h *harness) trigger(t *testing.T, id string, step task.Step, force bool) stageexec.Outcome {
	t.Helper()
	out, err := h.mgr.Trigger(context.Background(), id, step, workflow.TriggerOptions{Force: force})
	if err != nil {
		t.Fatalf("Trigger(%s): %v", step, err)
	}
	return out
}

func (h *harness) mustComplete(t *testing.T, id string, steps ...task.Step) {
	t.Helper()
	for _, step := range steps {
		out := h.trigger(t, id, step, false)
		if out.Kind != stageexec.OutcomeCompleted {
			t.Fatalf("%s outcome = %s (%s)", step, out.Kind, out.Reason)
		}
	}
}

func (h *harness) status(t *testing.T, id string) *task.Task {
	t.Helper()
	snapshot, err := h.mgr.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	return snapshot
}

// waitForStep polls until the step is terminal, failing after timeout.
func (h *harness) waitForStep(t *testing.T, id string, step task.Step, timeout time.Duration) *task.StepState {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		state := h.status(t, id).Step(step)
		if state.Status.Terminal() {
			return state
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s still %s after %s", step, state.Status, timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// waitIdle blocks until the worker pool has no running or queued jobs.
func (h *harness) waitIdle(t *testing.T, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		health := h.mgr.Health(context.Background())
		if health.ActiveJobs == 0 && health.WaitingJobs == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("pool still busy: %d active, %d waiting", health.ActiveJobs, health.WaitingJobs)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) read(t *testing.T, tk *task.Task, kind artifact.Kind) []byte {
	t.Helper()
	rc, _, err := h.store.Open(context.Background(), tk.Namespace(), kind)
	if err != nil {
		t.Fatalf("open %s: %v", kind, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", kind, err)
	}
	return data
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func zipEntry(t *testing.T, data []byte, name string) []byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", name, err)
		}
		defer rc.Close()
		content, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read entry %s: %v", name, err)
		}
		return content
	}
	t.Fatalf("entry %s not found", name)
	return nil
}
