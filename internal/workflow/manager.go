package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"shortvideo/internal/artifact"
	"shortvideo/internal/config"
	"shortvideo/internal/fileutil"
	"shortvideo/internal/language"
	"shortvideo/internal/logging"
	"shortvideo/internal/notifications"
	"shortvideo/internal/pipeline"
	"shortvideo/internal/providers"
	"shortvideo/internal/services"
	"shortvideo/internal/stageexec"
	"shortvideo/internal/task"
)

// Options wires a Manager.
type Options struct {
	Config     *config.Config
	Repository *task.Repository
	Store      artifact.Store
	Registry   *providers.Registry
	Notifier   notifications.Service
	Logger     *slog.Logger
}

// Manager coordinates step execution for all tasks in this process.
type Manager struct {
	cfg      *config.Config
	repo     *task.Repository
	store    artifact.Store
	registry *providers.Registry
	runner   *stageexec.Runner
	logger   *slog.Logger

	heartbeat *HeartbeatMonitor
	pool      *Pool
	async     map[task.Step]bool

	baseCtx    context.Context
	cancelBase context.CancelFunc
	background sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool
}

// NewManager constructs a workflow manager. Background jobs may be submitted
// before Start; Start adds crash recovery and the watchdog.
func NewManager(opts Options) (*Manager, error) {
	if opts.Config == nil || opts.Repository == nil || opts.Store == nil || opts.Registry == nil {
		return nil, errors.New("workflow: config, repository, store, and registry are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(opts.Config)
	}
	runner, err := stageexec.New(stageexec.Options{
		Config:     opts.Config,
		Repository: opts.Repository,
		Store:      opts.Store,
		Handlers:   pipeline.Handlers(opts.Config, opts.Registry),
		Notifier:   notifier,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	async := make(map[task.Step]bool, len(opts.Config.Workflow.AsyncSteps))
	for _, name := range opts.Config.Workflow.AsyncSteps {
		if step, ok := task.ParseStep(name); ok {
			async[step] = true
		}
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	workflowLogger := logging.NewComponentLogger(logger, "workflow")
	return &Manager{
		cfg:      opts.Config,
		repo:     opts.Repository,
		store:    opts.Store,
		registry: opts.Registry,
		runner:   runner,
		logger:   workflowLogger,
		heartbeat: NewHeartbeatMonitor(
			opts.Repository,
			workflowLogger,
			opts.Config.HeartbeatInterval(),
			opts.Config.HeartbeatTimeout(),
		),
		pool:       NewPool(opts.Config.Workflow.Workers),
		async:      async,
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}, nil
}

// Start fails steps left in flight by a previous process and launches the
// watchdog.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.stopped {
		m.mu.Unlock()
		return errors.New("workflow stopped")
	}
	m.running = true
	m.mu.Unlock()

	interrupted, err := m.repo.FailInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("fail interrupted steps: %w", err)
	}
	for _, ref := range interrupted {
		m.logger.Warn("interrupted step failed",
			logging.String(logging.FieldTaskID, ref.TaskID),
			logging.String(logging.FieldStep, string(ref.Step)),
			logging.String(logging.FieldEventType, "step_interrupted"),
			logging.String(logging.FieldErrorHint, "resubmit the step"),
		)
	}

	// Nothing is in flight yet, so every spool file is left over from a crash.
	sweep := fileutil.RemoveStale(pipeline.SpoolDir(m.cfg), pipeline.SpoolPattern, time.Now())
	for _, failure := range sweep.Errors {
		m.logger.Warn("failed to remove stale spool file",
			logging.String("path", failure.Path),
			logging.Error(failure.Error),
			logging.String(logging.FieldEventType, "spool_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "check data_dir permissions"),
		)
	}

	m.background.Add(1)
	go m.watchdog(m.baseCtx)

	m.logger.Info("workflow started",
		logging.Int("workers", cap(m.pool.slots)),
		logging.Int("interrupted", len(interrupted)),
		logging.Int("stale_spools", len(sweep.Removed)),
		logging.String("async_steps", strings.Join(m.cfg.Workflow.AsyncSteps, ",")),
	)
	return nil
}

// Stop cancels background work and waits for it to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.running = false
	m.mu.Unlock()

	m.cancelBase()
	m.pool.Wait()
	m.background.Wait()
}

func (m *Manager) watchdog(ctx context.Context) {
	defer m.background.Done()
	interval := m.cfg.HeartbeatInterval()
	if interval <= 0 || m.cfg.HeartbeatTimeout() <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.heartbeat.ReclaimStaleSteps(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("reclaim stale steps failed; stuck steps may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check task database access"),
				)
			}
		}
	}
}

// CreateRequest describes a new task. Empty fields take configured defaults.
type CreateRequest struct {
	ID         string
	Tenant     string
	Project    string
	Title      string
	SourceURL  string
	TargetLang string
	VoiceID    string
	AutoRun    bool
}

// Create registers a task and, when requested or configured, starts a full
// pipeline run in the background.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*task.Task, error) {
	source := strings.TrimSpace(req.SourceURL)
	if source == "" {
		return nil, services.Wrap(services.ErrValidation, "", "create task", "source url is required", nil)
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = task.NewID()
	}
	lang := firstNonEmpty(req.TargetLang, m.cfg.Pipeline.TargetLang)
	normalized, err := language.Normalize(lang)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "create task", fmt.Sprintf("unsupported target language %q", lang), err)
	}

	t := task.New(id)
	t.Tenant = firstNonEmpty(req.Tenant, m.cfg.Storage.Tenant)
	t.Project = firstNonEmpty(req.Project, m.cfg.Storage.Project)
	t.Title = strings.TrimSpace(req.Title)
	t.SourceURL = source
	t.Platform = task.InferPlatform(source)
	t.TargetLang = normalized
	t.VoiceID = firstNonEmpty(req.VoiceID, m.cfg.Pipeline.VoiceID)

	created, err := m.repo.Create(ctx, t)
	if err != nil {
		return nil, err
	}
	m.logger.Info("task created",
		logging.String(logging.FieldTaskID, created.ID),
		logging.String("platform", created.Platform),
		logging.String("target_lang", created.TargetLang),
	)
	if req.AutoRun || m.cfg.Workflow.AutoRun {
		m.RunAllAsync(created.ID, RunAllOptions{})
	}
	return created, nil
}

// Status returns the current snapshot of a task.
func (m *Manager) Status(ctx context.Context, id string) (*task.Task, error) {
	return m.repo.Get(ctx, id)
}

// List returns a page of tasks and the total match count.
func (m *Manager) List(ctx context.Context, filter task.Filter, page task.Page) ([]*task.Task, int, error) {
	return m.repo.List(ctx, filter, page)
}

// Async reports whether step runs on the worker pool.
func (m *Manager) Async(step task.Step) bool {
	return m.async[step]
}

func newJobID() string {
	return ulid.Make().String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
