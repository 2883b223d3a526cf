package migrations

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	ID      string
	Name    string
	UpSQL   string
	DownSQL string
}

// All returns every migration in the order it must be applied
func All() []*Migration {
	return []*Migration{
		InitialSchema,
		RetentionPolicies,
	}
}

// Status reports whether a migration has been applied
type Status struct {
	Name    string
	Applied bool
}

// Migrator manages database migrations
type Migrator struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

// New creates a new Migrator
func New(db *sql.DB, logger logrus.FieldLogger) *Migrator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Migrator{db: db, logger: logger}
}

// Initialize creates the migrations table if it doesn't exist
func (m *Migrator) Initialize() error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := m.db.Exec(query)
	return err
}

// GetAppliedMigrations returns the names of applied migrations
func (m *Migrator) GetAppliedMigrations() (map[string]bool, error) {
	rows, err := m.db.Query(`SELECT name FROM migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			m.logger.WithError(cerr).Warn("error closing rows")
		}
	}()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// executeMigration runs statement and records the change in one transaction
func (m *Migrator) executeMigration(migration *Migration, statement, recordQuery string, recordArgs ...interface{}) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			m.logger.WithError(err).Warn("failed to rollback transaction")
		}
	}()

	if _, err := tx.Exec(statement); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", migration.Name, err)
	}
	if _, err := tx.Exec(recordQuery, recordArgs...); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
	}

	return tx.Commit()
}

// ApplyMigration applies a single migration
func (m *Migrator) ApplyMigration(migration *Migration) error {
	return m.executeMigration(
		migration,
		migration.UpSQL,
		"INSERT INTO migrations (name) VALUES ($1)",
		migration.Name,
	)
}

// RollbackMigration rolls back a single migration
func (m *Migrator) RollbackMigration(migration *Migration) error {
	return m.executeMigration(
		migration,
		migration.DownSQL,
		"DELETE FROM migrations WHERE name = $1",
		migration.Name,
	)
}

// Migrate applies all pending migrations and returns how many were applied
func (m *Migrator) Migrate(migrations []*Migration) (int, error) {
	if err := m.Initialize(); err != nil {
		return 0, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return 0, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	count := 0
	for _, migration := range migrations {
		if applied[migration.Name] {
			continue
		}
		if err := m.ApplyMigration(migration); err != nil {
			return count, fmt.Errorf("failed to apply migration %s: %w", migration.Name, err)
		}
		m.logger.WithField("migration", migration.Name).Info("applied migration")
		count++
	}

	return count, nil
}

// Rollback rolls back the last applied migration
func (m *Migrator) Rollback(migrations []*Migration) error {
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var lastMigration *Migration
	for i := len(migrations) - 1; i >= 0; i-- {
		if applied[migrations[i].Name] {
			lastMigration = migrations[i]
			break
		}
	}
	if lastMigration == nil {
		return fmt.Errorf("no migrations to rollback")
	}

	if err := m.RollbackMigration(lastMigration); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", lastMigration.Name, err)
	}
	m.logger.WithField("migration", lastMigration.Name).Info("rolled back migration")

	return nil
}

// Status lists every migration with its applied flag
func (m *Migrator) Status(migrations []*Migration) ([]Status, error) {
	if err := m.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	status := make([]Status, len(migrations))
	for i, migration := range migrations {
		status[i] = Status{Name: migration.Name, Applied: applied[migration.Name]}
	}
	return status, nil
}
