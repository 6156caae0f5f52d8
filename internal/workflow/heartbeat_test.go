package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"shortvideo/internal/logging"
	"shortvideo/internal/task"
	"shortvideo/internal/testsupport"
	"shortvideo/internal/workflow"
)

func TestReclaimStaleSteps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	repo := testsupport.MustOpenRepository(t, cfg)
	ctx := context.Background()

	stale := testsupport.NewTask(t, repo, "stale")
	fresh := testsupport.NewTask(t, repo, "fresh")
	old := time.Now().UTC().Add(-time.Minute)
	now := time.Now().UTC()
	seed := func(id string, seen time.Time) {
		t.Helper()
		if _, err := repo.Update(ctx, id, func(tk *task.Task) error {
			state := tk.Step(task.StepParse)
			state.Status = task.StepProcessing
			state.StartedAt = &seen
			state.LastHeartbeat = &seen
			return nil
		}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	seed(stale.ID, old)
	seed(fresh.ID, now)

	monitor := workflow.NewHeartbeatMonitor(repo, logging.NewNop(), time.Second, 10*time.Second)
	reclaimed, err := monitor.ReclaimStaleSteps(ctx)
	if err != nil {
		t.Fatalf("ReclaimStaleSteps: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0].TaskID != stale.ID || reclaimed[0].Step != task.StepParse {
		t.Fatalf("reclaimed = %+v", reclaimed)
	}

	got, err := repo.Get(ctx, stale.ID)
	if err != nil {
		t.Fatal(err)
	}
	if state := got.Step(task.StepParse); state.Status != task.StepError || state.Error != task.ReasonStalled {
		t.Fatalf("stale parse = %+v", state)
	}
	got, err = repo.Get(ctx, fresh.ID)
	if err != nil {
		t.Fatal(err)
	}
	if state := got.Step(task.StepParse); state.Status != task.StepProcessing {
		t.Fatalf("fresh parse = %+v", state)
	}
}

func TestHeartbeatLoopTouchesStep(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	repo := testsupport.MustOpenRepository(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tk := testsupport.NewTask(t, repo, "beat")
	start := time.Now().UTC().Add(-time.Hour)
	if _, err := repo.Update(ctx, tk.ID, func(t *task.Task) error {
		state := t.Step(task.StepParse)
		state.Status = task.StepProcessing
		state.StartedAt = &start
		state.LastHeartbeat = &start
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	monitor := workflow.NewHeartbeatMonitor(repo, logging.NewNop(), 20*time.Millisecond, time.Minute)
	var wg sync.WaitGroup
	wg.Add(1)
	go monitor.StartLoop(ctx, &wg, tk.ID, task.StepParse)

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := repo.Get(context.Background(), tk.ID)
		if err != nil {
			t.Fatal(err)
		}
		if seen := got.Step(task.StepParse).LastHeartbeat; seen != nil && seen.After(start.Add(30*time.Minute)) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("heartbeat was never refreshed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	wg.Wait()
}

func TestHealthReportsFakeProvidersReady(t *testing.T) {
	h := newHarness(t)
	health := h.mgr.Health(context.Background())
	if !health.Ready() {
		t.Fatalf("expected ready health, got %+v", health)
	}
	if len(health.Stages) != len(task.AllSteps()) {
		t.Fatalf("got %d stage checks", len(health.Stages))
	}
	if health.Storage.Name != "storage:local" {
		t.Fatalf("storage = %+v", health.Storage)
	}
}
