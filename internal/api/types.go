package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Task describes a task snapshot in a transport-friendly format.
type Task struct {
	ID           string              `json:"id"`
	Tenant       string              `json:"tenant"`
	Project      string              `json:"project"`
	Title        string              `json:"title,omitempty"`
	Platform     string              `json:"platform"`
	SourceURL    string              `json:"sourceUrl"`
	TargetLang   string              `json:"targetLang"`
	VoiceID      string              `json:"voiceId"`
	Status       string              `json:"status"`
	LastStep     string              `json:"lastStep,omitempty"`
	ErrorStep    string              `json:"errorStep,omitempty"`
	ErrorMessage string              `json:"errorMessage,omitempty"`
	Steps        map[string]StepView `json:"steps"`
	Artifacts    map[string]string   `json:"artifacts"`
	CreatedAt    string              `json:"createdAt,omitempty"`
	UpdatedAt    string              `json:"updatedAt,omitempty"`
}

// StepView mirrors one step's state.
type StepView struct {
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	Provider      string `json:"provider,omitempty"`
	Attempts      int    `json:"attempts"`
	StartedAt     string `json:"startedAt,omitempty"`
	FinishedAt    string `json:"finishedAt,omitempty"`
	LastHeartbeat string `json:"lastHeartbeat,omitempty"`
}

// Artifact describes a stored output.
type Artifact struct {
	Kind        string `json:"kind"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	CreatedAt   string `json:"createdAt,omitempty"`
	Legacy      bool   `json:"legacy,omitempty"`
	DownloadURL string `json:"downloadUrl"`
}

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	ID         string `json:"id,omitempty"`
	Tenant     string `json:"tenant,omitempty"`
	Project    string `json:"project,omitempty"`
	Title      string `json:"title,omitempty"`
	SourceURL  string `json:"sourceUrl"`
	TargetLang string `json:"targetLang,omitempty"`
	VoiceID    string `json:"voiceId,omitempty"`
	AutoRun    bool   `json:"autoRun,omitempty"`
}

// TaskResponse wraps a single task.
type TaskResponse struct {
	Task Task `json:"task"`
}

// TaskListResponse wraps one page of tasks with the total match count.
type TaskListResponse struct {
	Items    []Task `json:"items"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

// StepResponse is returned by step triggers. Queued responses carry the job
// handle and the URL to poll; completed and failed ones carry artifacts or
// the failure reason.
type StepResponse struct {
	Step      string     `json:"step"`
	Outcome   string     `json:"outcome"`
	Queued    bool       `json:"queued"`
	Job       string     `json:"job,omitempty"`
	StatusURL string     `json:"statusUrl,omitempty"`
	Skipped   bool       `json:"skipped,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Retryable bool       `json:"retryable,omitempty"`
}

// RunResponse acknowledges a background full-pipeline run.
type RunResponse struct {
	Queued    bool   `json:"queued"`
	Job       string `json:"job"`
	StatusURL string `json:"statusUrl"`
}

// StageHealth mirrors readiness reporting for pipeline steps and storage.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse aggregates gateway readiness.
type HealthResponse struct {
	Ready       bool              `json:"ready"`
	Stages      []StageHealth     `json:"stages"`
	Storage     StageHealth       `json:"storage"`
	Database    StageHealth       `json:"database"`
	Providers   map[string]string `json:"providers"`
	ActiveJobs  int               `json:"activeJobs"`
	WaitingJobs int               `json:"waitingJobs"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}
