package migration

import (
	"context"

	"perchmp/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the run ledger schema. Statements stick to types both
// PostgreSQL and SQLite accept.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all migrations in order; every statement is idempotent
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createRunsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create runs table")
	}

	if err := r.createModelResultsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create model_results table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			run_id VARCHAR(64) PRIMARY KEY,
			plan_name TEXT NOT NULL,
			plan_hash VARCHAR(64) NOT NULL,
			fingerprint VARCHAR(64) NOT NULL,
			biometrics_hash VARCHAR(64) NOT NULL,
			population_hash VARCHAR(64) NOT NULL,
			seed BIGINT NOT NULL,
			simulations INTEGER NOT NULL,
			alpha DOUBLE PRECISION NOT NULL,
			second_control TEXT NOT NULL DEFAULT '',
			code_version VARCHAR(32) NOT NULL,
			models INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			created_at VARCHAR(40) NOT NULL,
			duration_ms BIGINT NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createModelResultsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS model_results (
			run_id VARCHAR(64) NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			status VARCHAR(16) NOT NULL,
			formula TEXT NOT NULL,
			kind VARCHAR(16) NOT NULL,
			frame VARCHAR(16) NOT NULL,
			n INTEGER,
			test TEXT,
			statistic DOUBLE PRECISION,
			p_value DOUBLE PRECISION,
			aic DOUBLE PRECISION,
			superseded_by TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, name)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
