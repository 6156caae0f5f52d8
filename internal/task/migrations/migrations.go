package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"shortvideo/internal/logging"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Migrator applies the embedded task schema migrations.
type Migrator struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewMigrator creates a new migrator instance.
func NewMigrator(db *sql.DB, logger *slog.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Migrator{db: db, logger: logger}, nil
}

// Up runs all available migrations.
func (m *Migrator) Up(ctx context.Context) error {
	inst, closeSrc, err := m.instance(ctx)
	defer closeSrc()
	if err != nil {
		return err
	}

	err = inst.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	m.logger.Debug("migrations applied")
	return nil
}

// Down reverts all migrations.
func (m *Migrator) Down(ctx context.Context) error {
	inst, closeSrc, err := m.instance(ctx)
	defer closeSrc()
	if err != nil {
		return err
	}

	err = inst.Down()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not revert migrations: %w", err)
	}
	m.logger.Debug("migrations reverted")
	return nil
}

// Version reports the applied schema version.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	inst, closeSrc, err := m.instance(ctx)
	defer closeSrc()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := inst.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

// instance builds a migrate instance over the shared handle. It is never
// closed through migrate, which would close the caller's *sql.DB.
func (m *Migrator) instance(_ context.Context) (*migrate.Migrate, func(), error) {
	closeSrc := func() {}

	driver, err := sqlite.WithInstance(m.db, &sqlite.Config{})
	if err != nil {
		return nil, closeSrc, fmt.Errorf("could not create driver: %w", err)
	}

	src, err := iofs.New(migrationFiles, "sql")
	if err != nil {
		return nil, closeSrc, fmt.Errorf("could not create fs: %w", err)
	}
	closeSrc = func() {
		if err := src.Close(); err != nil {
			m.logger.Error("could not close migration source", logging.Error(err))
		}
	}

	inst, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, closeSrc, fmt.Errorf("could not create migration instance: %w", err)
	}
	return inst, closeSrc, nil
}
