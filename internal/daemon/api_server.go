package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"shortvideo/internal/artifact"
	"shortvideo/internal/config"
	"shortvideo/internal/logging"
	"shortvideo/internal/services"
	"shortvideo/internal/workflow"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	logger   *slog.Logger
	workflow *workflow.Manager
	store    artifact.Store
	router   chi.Router
	server   *http.Server
}

func newAPIServer(cfg *config.Config, wf *workflow.Manager, store artifact.Store, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		logger:   logging.NewComponentLogger(logger, "api-server"),
		workflow: wf,
		store:    store,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(srv.accessLog)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", srv.handleHealth)
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", srv.handleCreateTask)
			r.Get("/", srv.handleListTasks)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", srv.handleGetTask)
				r.Post("/run", srv.handleRunAll)
				r.Post("/steps/{step}", srv.handleTriggerStep)
				r.Get("/artifacts/{kind}", srv.handleArtifact)
			})
		})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		srv.writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		srv.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	srv.router = r

	srv.server = &http.Server{
		Addr:              cfg.Server.Bind,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) serve(listener net.Listener) error {
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *apiServer) shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps a classified error to its status code. Internal
// failures are logged and reported without detail.
func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := services.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.logger).Error("request failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_error"),
		)
		message = "internal error"
	}
	s.writeError(w, status, message)
}
