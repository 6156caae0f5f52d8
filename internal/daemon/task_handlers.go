package daemon

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"shortvideo/internal/api"
	"shortvideo/internal/artifact"
	"shortvideo/internal/logging"
	"shortvideo/internal/services"
	"shortvideo/internal/stageexec"
	"shortvideo/internal/task"
	"shortvideo/internal/workflow"
)

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := api.FromHealth(s.workflow.Health(r.Context()))
	status := http.StatusOK
	if !health.Ready {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

func (s *apiServer) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req api.CreateTaskRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	created, err := s.workflow.Create(r.Context(), workflow.CreateRequest{
		ID:         req.ID,
		Tenant:     req.Tenant,
		Project:    req.Project,
		Title:      req.Title,
		SourceURL:  req.SourceURL,
		TargetLang: req.TargetLang,
		VoiceID:    req.VoiceID,
		AutoRun:    req.AutoRun,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", api.TaskPath(created.ID))
	s.writeJSON(w, http.StatusCreated, api.TaskResponse{Task: api.FromTask(created)})
}

func (s *apiServer) handleListTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := task.Filter{
		Platform: strings.TrimSpace(query.Get("platform")),
		Tenant:   strings.TrimSpace(query.Get("tenant")),
		Project:  strings.TrimSpace(query.Get("project")),
	}
	if value := strings.TrimSpace(query.Get("status")); value != "" {
		status, ok := task.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		filter.Status = status
	}
	number, err := intParam(query.Get("page"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	size, err := intParam(query.Get("pageSize"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid pageSize")
		return
	}
	page := task.Page{Number: number, Size: size}.Normalized()

	tasks, total, err := s.workflow.List(r.Context(), filter, page)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskListResponse{
		Items:    api.FromTasks(tasks),
		Total:    total,
		Page:     page.Number,
		PageSize: page.Size,
	})
}

func (s *apiServer) handleGetTask(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.workflow.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResponse{Task: api.FromTask(snapshot)})
}

func (s *apiServer) handleTriggerStep(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	step, ok := task.ParseStep(chi.URLParam(r, "step"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown step %q", chi.URLParam(r, "step")))
		return
	}
	force, err := boolParam(r.URL.Query().Get("force"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid force flag")
		return
	}

	out, err := s.workflow.Trigger(r.Context(), id, step, workflow.TriggerOptions{Force: force})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := api.FromOutcome(id, out)
	switch out.Kind {
	case stageexec.OutcomeQueued:
		w.Header().Set("Location", resp.StatusURL)
		s.writeJSON(w, http.StatusAccepted, resp)
	case stageexec.OutcomeFailed:
		s.writeJSON(w, failureStatus(out), resp)
	default:
		s.writeJSON(w, http.StatusOK, resp)
	}
}

// failureStatus maps a failed outcome to its response code. Outcomes built
// from a settled step record carry the marker but not the original error.
func failureStatus(out stageexec.Outcome) int {
	if out.Err == nil {
		return http.StatusBadGateway
	}
	if status := services.HTTPStatus(out.Err); status != http.StatusInternalServerError {
		return status
	}
	return http.StatusBadGateway
}

func (s *apiServer) handleRunAll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	force, err := boolParam(r.URL.Query().Get("force"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid force flag")
		return
	}
	if _, err := s.workflow.Status(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	job := s.workflow.RunAllAsync(id, workflow.RunAllOptions{Force: force})
	resp := api.RunAccepted(id, job)
	w.Header().Set("Location", resp.StatusURL)
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *apiServer) handleArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	kind, ok := artifact.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown artifact kind %q", chi.URLParam(r, "kind")))
		return
	}
	snapshot, err := s.workflow.Status(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	// Only outputs of a ready step are served. Invalidated or in-flight
	// outputs may still sit in the store but belong to no current run.
	if producer, ok := task.Producer(kind); ok {
		if state := snapshot.Step(producer); state.Status != task.StepReady {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("artifact %s is not available: %s is %s", kind, producer, state.Status))
			return
		}
	}
	handle, err := s.store.Resolve(r.Context(), snapshot.Namespace(), kind)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if handle.Redirect() {
		http.Redirect(w, r, handle.URL, http.StatusFound)
		return
	}

	body, err := handle.Open()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer body.Close()

	filename := handle.Filename
	if filename == "" {
		filename = artifact.DownloadName(snapshot.Namespace(), kind)
	}
	contentType := handle.Ref.ContentType
	if contentType == "" {
		contentType = kind.ContentType()
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	if handle.Ref.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(handle.Ref.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		logging.WithContext(r.Context(), s.logger).Warn("artifact stream interrupted",
			logging.String(logging.FieldTaskID, id),
			logging.String("kind", string(kind)),
			logging.Error(err),
		)
	}
}

func intParam(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

func boolParam(value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, nil
	}
	return strconv.ParseBool(value)
}
