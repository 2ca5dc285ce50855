// Package ledger stores run manifests and model outcomes in PostgreSQL or SQLite.
package ledger

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"perchmp/domain/core"
	"perchmp/domain/run"
	"perchmp/internal"
	"perchmp/internal/migration"
	"perchmp/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Ledger is a ports.LedgerPort over sqlx
type Ledger struct {
	db     *sqlx.DB
	logger *internal.Logger
}

var _ ports.LedgerPort = (*Ledger)(nil)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Driver picks the database driver for a DSN: postgres URLs use lib/pq, anything else
// is a SQLite file path
func Driver(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

// Open connects to the ledger database and applies migrations
func Open(ctx context.Context, dsn string, logger *internal.Logger) (*Ledger, error) {
	if dsn == "" {
		return nil, fmt.Errorf("ledger DSN is empty")
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	driver := Driver(dsn)
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s ledger: %w", driver, err)
	}
	if driver == "sqlite" {
		// one writer at a time; foreign keys are off by default
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Ledger{db: db, logger: logger.With("ledger")}, nil
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}

type runRow struct {
	RunID          string  `db:"run_id"`
	PlanName       string  `db:"plan_name"`
	PlanHash       string  `db:"plan_hash"`
	Fingerprint    string  `db:"fingerprint"`
	BiometricsHash string  `db:"biometrics_hash"`
	PopulationHash string  `db:"population_hash"`
	Seed           int64   `db:"seed"`
	Simulations    int     `db:"simulations"`
	Alpha          float64 `db:"alpha"`
	SecondControl  string  `db:"second_control"`
	CodeVersion    string  `db:"code_version"`
	Models         int     `db:"models"`
	Failed         int     `db:"failed"`
	CreatedAt      string  `db:"created_at"`
	DurationMs     int64   `db:"duration_ms"`
}

type modelRow struct {
	RunID        string   `db:"run_id"`
	Name         string   `db:"name"`
	Status       string   `db:"status"`
	Formula      string   `db:"formula"`
	Kind         string   `db:"kind"`
	Frame        string   `db:"frame"`
	N            *int     `db:"n"`
	Test         *string  `db:"test"`
	Statistic    *float64 `db:"statistic"`
	PValue       *float64 `db:"p_value"`
	AIC          *float64 `db:"aic"`
	SupersededBy string   `db:"superseded_by"`
	Error        string   `db:"error"`
}

const runColumns = `run_id, plan_name, plan_hash, fingerprint, biometrics_hash, population_hash, seed,
	simulations, alpha, second_control, code_version, models, failed, created_at, duration_ms`

// Record stores the run and one row per model attempt in a single transaction
func (l *Ledger) Record(ctx context.Context, result *run.Result) error {
	if result == nil || result.Manifest == nil {
		return fmt.Errorf("result has no manifest")
	}
	e := run.NewLedgerEntry(result)
	row := runRow{
		RunID:          e.RunID.String(),
		PlanName:       e.PlanName,
		PlanHash:       e.PlanHash.String(),
		Fingerprint:    e.Fingerprint.String(),
		BiometricsHash: e.BiometricsHash.String(),
		PopulationHash: e.PopulationHash.String(),
		Seed:           e.Seed,
		Simulations:    e.Simulations,
		Alpha:          e.Alpha,
		SecondControl:  strings.Join(result.Manifest.SecondControl, ","),
		CodeVersion:    result.Manifest.CodeVersion,
		Models:         e.Models,
		Failed:         e.Failed,
		CreatedAt:      e.CreatedAt.String(),
		DurationMs:     e.DurationMs,
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (:run_id, :plan_name, :plan_hash, :fingerprint, :biometrics_hash, :population_hash, :seed,
			:simulations, :alpha, :second_control, :code_version, :models, :failed, :created_at, :duration_ms)
	`, row); err != nil {
		return fmt.Errorf("insert run %s: %w", row.RunID, err)
	}

	for i := range result.Models {
		m := modelRowFor(row.RunID, &result.Models[i])
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO model_results (run_id, name, status, formula, kind, frame, n, test, statistic, p_value, aic, superseded_by, error)
			VALUES (:run_id, :name, :status, :formula, :kind, :frame, :n, :test, :statistic, :p_value, :aic, :superseded_by, :error)
		`, m); err != nil {
			return fmt.Errorf("insert model %s: %w", m.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	l.logger.Debug("recorded run %s (%d models)", row.RunID, len(result.Models))
	return nil
}

func modelRowFor(runID string, mr *run.ModelResult) modelRow {
	row := modelRow{
		RunID:        runID,
		Name:         mr.Name,
		Status:       string(mr.Status),
		Formula:      mr.Spec.Formula(),
		Kind:         string(mr.Spec.Kind),
		Frame:        string(mr.Frame),
		SupersededBy: mr.SupersededBy,
		Error:        mr.Error,
	}
	if m := mr.Model; m != nil {
		n, test := m.N, m.Overall.Name
		row.N = &n
		row.Test = &test
		row.Statistic = nullable(m.Overall.Statistic)
		row.PValue = nullable(m.Overall.PValue)
		row.AIC = nullable(m.AIC)
	}
	return row
}

// nullable stores NaN and infinities as NULL
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Runs lists recorded runs, newest first; limit <= 0 lists all
func (l *Ledger) Runs(ctx context.Context, limit int) ([]run.LedgerEntry, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, run_id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return l.query(ctx, query, args...)
}

// Matching lists the runs sharing a fingerprint, oldest first
func (l *Ledger) Matching(ctx context.Context, fingerprint core.Hash) ([]run.LedgerEntry, error) {
	return l.query(ctx, `SELECT `+runColumns+` FROM runs WHERE fingerprint = ? ORDER BY created_at, run_id`,
		fingerprint.String())
}

func (l *Ledger) query(ctx context.Context, query string, args ...any) ([]run.LedgerEntry, error) {
	var rows []runRow
	if err := l.db.SelectContext(ctx, &rows, l.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]run.LedgerEntry, len(rows))
	for i, r := range rows {
		created, err := time.Parse(time.RFC3339, r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("run %s: created_at %q: %w", r.RunID, r.CreatedAt, err)
		}
		out[i] = run.LedgerEntry{
			RunID:          core.RunID(r.RunID),
			PlanName:       r.PlanName,
			PlanHash:       core.Hash(r.PlanHash),
			Fingerprint:    core.Hash(r.Fingerprint),
			BiometricsHash: core.Hash(r.BiometricsHash),
			PopulationHash: core.Hash(r.PopulationHash),
			Seed:           r.Seed,
			Simulations:    r.Simulations,
			Alpha:          r.Alpha,
			Models:         r.Models,
			Failed:         r.Failed,
			CreatedAt:      core.Timestamp(created.UTC()),
			DurationMs:     r.DurationMs,
		}
	}
	return out, nil
}

// ModelOutcome is one recorded model attempt
type ModelOutcome struct {
	Name   string
	Status run.ModelStatus
	PValue float64 // NaN when not recorded
}

// Outcomes lists the recorded model attempts of one run in name order
func (l *Ledger) Outcomes(ctx context.Context, runID core.RunID) ([]ModelOutcome, error) {
	var rows []modelRow
	err := l.db.SelectContext(ctx, &rows, l.db.Rebind(`
		SELECT run_id, name, status, formula, kind, frame, n, test, statistic, p_value, aic, superseded_by, error
		FROM model_results WHERE run_id = ? ORDER BY name
	`), runID.String())
	if err != nil {
		return nil, err
	}
	out := make([]ModelOutcome, len(rows))
	for i, r := range rows {
		p := math.NaN()
		if r.PValue != nil {
			p = *r.PValue
		}
		out[i] = ModelOutcome{Name: r.Name, Status: run.ModelStatus(r.Status), PValue: p}
	}
	return out, nil
}
