package api

import (
	"fmt"
	"net/url"
	"time"

	"shortvideo/internal/artifact"
	"shortvideo/internal/stage"
	"shortvideo/internal/stageexec"
	"shortvideo/internal/task"
	"shortvideo/internal/workflow"
)

// TaskPath is the status URL of a task.
func TaskPath(id string) string {
	return "/api/tasks/" + url.PathEscape(id)
}

// ArtifactPath is the download URL of one artifact kind.
func ArtifactPath(id string, kind artifact.Kind) string {
	return TaskPath(id) + "/artifacts/" + url.PathEscape(string(kind))
}

// FromTask converts a task record to its API representation.
func FromTask(t *task.Task) Task {
	if t == nil {
		return Task{}
	}
	dto := Task{
		ID:         t.ID,
		Tenant:     t.Tenant,
		Project:    t.Project,
		Title:      t.Title,
		Platform:   t.Platform,
		SourceURL:  t.SourceURL,
		TargetLang: t.TargetLang,
		VoiceID:    t.VoiceID,
		Status:     string(t.Status),
		LastStep:   string(t.LastCompletedStep),
		Steps:      make(map[string]StepView, len(task.AllSteps())),
		Artifacts:  make(map[string]string, len(t.Artifacts)),
		CreatedAt:  formatTime(t.CreatedAt),
		UpdatedAt:  formatTime(t.UpdatedAt),
	}
	if step, reason, ok := t.Failure(); ok {
		dto.ErrorStep = string(step)
		dto.ErrorMessage = reason
	}
	for _, step := range task.AllSteps() {
		state := t.Step(step)
		dto.Steps[string(step)] = StepView{
			Status:        string(state.Status),
			Error:         state.Error,
			Provider:      state.Provider,
			Attempts:      state.Attempts,
			StartedAt:     formatTimePtr(state.StartedAt),
			FinishedAt:    formatTimePtr(state.FinishedAt),
			LastHeartbeat: formatTimePtr(state.LastHeartbeat),
		}
	}
	for kind, key := range t.Artifacts {
		dto.Artifacts[string(kind)] = key
	}
	return dto
}

// FromTasks converts a page of task records.
func FromTasks(tasks []*task.Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, FromTask(t))
	}
	return out
}

// FromRef converts an artifact reference, pointing its download URL at the
// gateway route for the task.
func FromRef(taskID string, ref artifact.Ref) Artifact {
	return Artifact{
		Kind:        string(ref.Kind),
		Key:         ref.Key,
		Size:        ref.Size,
		ContentType: ref.ContentType,
		CreatedAt:   formatTime(ref.CreatedAt),
		Legacy:      ref.Legacy,
		DownloadURL: ArtifactPath(taskID, ref.Kind),
	}
}

// FromOutcome converts a step outcome.
func FromOutcome(taskID string, out stageexec.Outcome) StepResponse {
	resp := StepResponse{
		Step:      string(out.Step),
		Outcome:   string(out.Kind),
		Skipped:   out.Skipped,
		Reason:    out.Reason,
		Retryable: out.Retryable,
	}
	switch out.Kind {
	case stageexec.OutcomeQueued:
		resp.Queued = true
		resp.Job = out.Job
		resp.StatusURL = TaskPath(taskID)
	case stageexec.OutcomeCompleted:
		resp.Artifacts = make([]Artifact, 0, len(out.Artifacts))
		for _, ref := range out.Artifacts {
			resp.Artifacts = append(resp.Artifacts, FromRef(taskID, ref))
		}
	}
	return resp
}

// FromHealth converts the workflow health report.
func FromHealth(h workflow.Health) HealthResponse {
	stages := make([]StageHealth, 0, len(h.Stages))
	for _, s := range h.Stages {
		stages = append(stages, fromStageHealth(s))
	}
	return HealthResponse{
		Ready:       h.Ready(),
		Stages:      stages,
		Storage:     fromStageHealth(h.Storage),
		Database:    fromStageHealth(h.Database),
		Providers:   h.Providers,
		ActiveJobs:  h.ActiveJobs,
		WaitingJobs: h.WaitingJobs,
	}
}

func fromStageHealth(h stage.Health) StageHealth {
	return StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail}
}

// RunAccepted builds the acknowledgment for a background RunAll.
func RunAccepted(taskID, job string) RunResponse {
	return RunResponse{Queued: true, Job: job, StatusURL: TaskPath(taskID)}
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(dateTimeFormat)
}

func formatTimePtr(value *time.Time) string {
	if value == nil {
		return ""
	}
	return formatTime(*value)
}

// Describe renders a one-line summary of an outcome for CLI output.
func Describe(resp StepResponse) string {
	switch {
	case resp.Queued:
		return fmt.Sprintf("%s queued (job %s)", resp.Step, resp.Job)
	case resp.Outcome == string(stageexec.OutcomeFailed):
		return fmt.Sprintf("%s failed: %s", resp.Step, resp.Reason)
	case resp.Skipped:
		return fmt.Sprintf("%s already complete", resp.Step)
	default:
		return fmt.Sprintf("%s completed (%d artifacts)", resp.Step, len(resp.Artifacts))
	}
}
