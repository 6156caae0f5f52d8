package task

import (
	"strings"
	"time"

	"shortvideo/internal/artifact"
)

// Status is the aggregated lifecycle of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

var allStatuses = []Status{StatusPending, StatusProcessing, StatusReady, StatusError}

// ParseStatus validates a status filter value.
func ParseStatus(value string) (Status, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, status := range allStatuses {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// StepStatus is the lifecycle of a single pipeline step.
type StepStatus string

const (
	StepAbsent     StepStatus = "absent"
	StepQueued     StepStatus = "queued"
	StepProcessing StepStatus = "processing"
	StepReady      StepStatus = "ready"
	StepError      StepStatus = "error"
)

// InFlight reports whether the step is queued or running.
func (s StepStatus) InFlight() bool {
	return s == StepQueued || s == StepProcessing
}

// Terminal reports whether the step has finished, successfully or not.
func (s StepStatus) Terminal() bool {
	return s == StepReady || s == StepError
}

// Failure reasons recorded by maintenance sweeps.
const (
	ReasonStalled     = "stalled: no heartbeat"
	ReasonInterrupted = "interrupted"
)

// StepState tracks one step's progress for a task.
type StepState struct {
	Status        StepStatus `json:"status"`
	Error         string     `json:"error,omitempty"`
	ErrorClass    string     `json:"error_class,omitempty"`
	Provider      string     `json:"provider,omitempty"`
	Attempts      int        `json:"attempts"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
}

// Task is one source reference driven through the pipeline.
type Task struct {
	ID                string
	Tenant            string
	Project           string
	Title             string
	Platform          string
	SourceURL         string
	TargetLang        string
	VoiceID           string
	Status            Status
	LastCompletedStep Step
	Steps             map[Step]*StepState
	Artifacts         map[artifact.Kind]string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// New returns a task with every step absent.
func New(id string) *Task {
	t := &Task{ID: id, Status: StatusPending}
	t.ensureMaps()
	return t
}

func (t *Task) ensureMaps() {
	if t.Steps == nil {
		t.Steps = make(map[Step]*StepState, len(allSteps))
	}
	for _, step := range allSteps {
		if t.Steps[step] == nil {
			t.Steps[step] = &StepState{Status: StepAbsent}
		}
	}
	if t.Artifacts == nil {
		t.Artifacts = make(map[artifact.Kind]string)
	}
}

// Step returns the state for a step, never nil.
func (t *Task) Step(step Step) *StepState {
	t.ensureMaps()
	state := t.Steps[step]
	if state == nil {
		state = &StepState{Status: StepAbsent}
		t.Steps[step] = state
	}
	return state
}

// Namespace is the artifact namespace owned by the task.
func (t *Task) Namespace() artifact.Namespace {
	return artifact.NewNamespace(t.Tenant, t.Project, t.ID)
}

// HasOutputs reports whether every artifact the step declares has a recorded key.
func (t *Task) HasOutputs(step Step) bool {
	for _, kind := range step.Outputs() {
		if t.Artifacts[kind] == "" {
			return false
		}
	}
	return true
}

// Invalidate resets the step and everything downstream of it to absent and
// drops their artifact keys. Upstream steps are untouched. Attempts survive
// the reset so a run started before it can be recognized as superseded.
func (t *Task) Invalidate(step Step) {
	targets := append([]Step{step}, step.Downstream()...)
	for _, s := range targets {
		state := t.Step(s)
		*state = StepState{Status: StepAbsent, Attempts: state.Attempts}
		for _, kind := range s.Outputs() {
			delete(t.Artifacts, kind)
		}
	}
}

// Recompute derives the aggregated task status and last completed step from
// the step states. Only required steps can put the task into error.
func (t *Task) Recompute() {
	t.ensureMaps()
	t.LastCompletedStep = ""
	for _, step := range allSteps {
		if t.Steps[step].Status == StepReady {
			t.LastCompletedStep = step
		}
	}

	requiredReady := true
	started := false
	for _, step := range allSteps {
		state := t.Steps[step]
		if state.Status != StepAbsent {
			started = true
		}
		if !step.Required() {
			continue
		}
		if state.Status == StepError {
			t.Status = StatusError
			return
		}
		if state.Status != StepReady {
			requiredReady = false
		}
	}
	switch {
	case requiredReady:
		t.Status = StatusReady
	case started:
		t.Status = StatusProcessing
	default:
		t.Status = StatusPending
	}
}

// Failure returns the first required step in error and its reason.
func (t *Task) Failure() (Step, string, bool) {
	for _, step := range allSteps {
		if !step.Required() {
			continue
		}
		if state := t.Steps[step]; state != nil && state.Status == StepError {
			return step, state.Error, true
		}
	}
	return "", "", false
}

// Clone returns a deep copy.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	out.Steps = make(map[Step]*StepState, len(t.Steps))
	for step, state := range t.Steps {
		if state == nil {
			continue
		}
		copied := *state
		copied.StartedAt = cloneTime(state.StartedAt)
		copied.FinishedAt = cloneTime(state.FinishedAt)
		copied.LastHeartbeat = cloneTime(state.LastHeartbeat)
		out.Steps[step] = &copied
	}
	out.Artifacts = make(map[artifact.Kind]string, len(t.Artifacts))
	for kind, key := range t.Artifacts {
		out.Artifacts[kind] = key
	}
	out.ensureMaps()
	return &out
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Status   Status
	Platform string
	Tenant   string
	Project  string
}

// Page selects a window of List results.
type Page struct {
	Number int
	Size   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 500
)

// Normalized applies the default and maximum page size.
func (p Page) Normalized() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// StepRef identifies one step of one task.
type StepRef struct {
	TaskID string
	Step   Step
}
