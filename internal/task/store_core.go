package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"shortvideo/internal/config"
	"shortvideo/internal/logging"
	"shortvideo/internal/services"
	"shortvideo/internal/task/migrations"
)

// ErrNotFound reports an unknown task id.
var ErrNotFound = fmt.Errorf("%w: task", services.ErrNotFound)

// Repository persists tasks in SQLite. Writes to one task are serialized by
// IMMEDIATE transactions; different tasks share nothing but the database.
type Repository struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (r *Repository) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = r.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the task database configured for the daemon.
func Open(cfg *config.Config, logger *slog.Logger) (*Repository, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath(), logger)
}

// OpenPath opens the database at path and applies pending migrations.
func OpenPath(path string, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrator.Up(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}, nil
}

func dsn(path string) string {
	params := url.Values{}
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Set("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode()
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// Ping verifies the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ensureContext(ctx))
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
