package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/gofrs/flock"

	"shortvideo/internal/artifact"
	"shortvideo/internal/config"
	"shortvideo/internal/logging"
	"shortvideo/internal/task"
	"shortvideo/internal/workflow"
)

// Daemon owns the workflow manager and the HTTP gateway and enforces
// single-instance execution per data directory.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	repo     *task.Repository
	workflow *workflow.Manager
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	DatabasePath string
	LockFilePath string
	Health       workflow.Health
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, repo *task.Repository, store artifact.Store, wf *workflow.Manager, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || repo == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, repository, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		repo:     repo,
		workflow: wf,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, wf, store, logger)
	return d, nil
}

// Start acquires the instance lock and launches the workflow manager.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another shortvideo daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.cancel = cancel

	d.running.Store(true)
	d.logger.Info("shortvideo daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("shortvideo daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.repo != nil {
		return d.repo.Close()
	}
	return nil
}

// Handler exposes the gateway router.
func (d *Daemon) Handler() http.Handler {
	return d.api.router
}

// Serve runs the HTTP gateway on listener until Shutdown.
func (d *Daemon) Serve(listener net.Listener) error {
	return d.api.serve(listener)
}

// Shutdown gracefully stops the HTTP gateway.
func (d *Daemon) Shutdown(ctx context.Context) error {
	return d.api.shutdown(ctx)
}

// Status reports daemon runtime information.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		DatabasePath: d.repo.Path(),
		LockFilePath: d.lockPath,
		Health:       d.workflow.Health(ctx),
	}
}
