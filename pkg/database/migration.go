package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MigrationHandler applies and rolls back the schema migrations for the
// per-resolution historical tables, the intraday table and the registry
// table.
type MigrationHandler struct {
	cfg    Config
	logger *zap.Logger
}

// NewMigrationHandler constructs a MigrationHandler.
func NewMigrationHandler(cfg Config, logger *zap.Logger) *MigrationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MigrationHandler{cfg: cfg, logger: logger}
}

func (m *MigrationHandler) migrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		m.cfg.User, m.cfg.Password, m.cfg.Host, m.cfg.Port, m.cfg.Name, sslModeOrDefault(m.cfg.SSLMode))
}

func sslModeOrDefault(mode string) string {
	if mode == "" {
		return "disable"
	}
	return mode
}

func (m *MigrationHandler) open() (*migrate.Migrate, error) {
	migrationsPath, err := m.migrationsPath()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get migrations path")
	}
	mig, err := migrate.New(migrationsPath, m.migrationURL())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create migration instance")
	}
	return mig, nil
}

func (m *MigrationHandler) migrationsPath() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "failed to get working directory")
	}
	path := filepath.Join(wd, "pkg/database/migrations")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", errors.Wrap(err, "migrations directory not found")
	}
	return fmt.Sprintf("file://%s", path), nil
}

// ApplyMigrations applies every pending up migration; a no-op if the
// schema is already current.
func (m *MigrationHandler) ApplyMigrations() error {
	mig, err := m.open()
	if err != nil {
		return err
	}
	defer mig.Close()

	if err := mig.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "failed to apply migrations")
	}
	version, dirty, err := mig.Version()
	if err == nil {
		m.logger.Info("schema migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}

// RollbackLast rolls back the single most recently applied migration.
func (m *MigrationHandler) RollbackLast() error {
	mig, err := m.open()
	if err != nil {
		return err
	}
	defer mig.Close()

	if err := mig.Steps(-1); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "failed to rollback migration")
	}
	return nil
}
