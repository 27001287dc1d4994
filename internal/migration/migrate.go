// Package migration applies the embedded database schema.
package migration

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Up applies all pending migrations. It is a no-op when the schema is current.
func Up(databaseURL string, logger *slog.Logger) error {
	m, err := newMigrate(databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrate(m, logger)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.Info("database schema ready", "version", version, "dirty", dirty)
	return nil
}

// Down rolls back every migration. Used by integration tests.
func Down(databaseURL string, logger *slog.Logger) error {
	m, err := newMigrate(databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrate(m, logger)

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("roll back migrations: %w", err)
	}
	return nil
}

func newMigrate(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, DriverURL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	return m, nil
}

func closeMigrate(m *migrate.Migrate, logger *slog.Logger) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		logger.Warn("close migration source", "error", srcErr)
	}
	if dbErr != nil {
		logger.Warn("close migration database", "error", dbErr)
	}
}

// DriverURL rewrites a postgres:// DSN to the pgx5:// scheme the migrate
// driver registers.
func DriverURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, scheme) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, scheme)
		}
	}
	return databaseURL
}
