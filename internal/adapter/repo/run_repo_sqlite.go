package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"reelgen/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS reel_runs (
  id           TEXT PRIMARY KEY,
  status       TEXT NOT NULL,
  stage        TEXT NOT NULL,
  input_kind   TEXT NOT NULL,
  caption      TEXT NOT NULL DEFAULT '',
  failed_stage TEXT NOT NULL DEFAULT '',
  error        TEXT NOT NULL DEFAULT '',
  started_at   TEXT NOT NULL,
  finished_at  TEXT
)`

// OpenSQLite opens (or creates) the ledger database at path in WAL mode and
// applies the schema.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create reel_runs: %w", err)
	}
	return db, nil
}

// RunRepositorySQLite implements domain.RunRepository on a local SQLite file.
type RunRepositorySQLite struct {
	db *sql.DB
}

func NewRunRepositorySQLite(db *sql.DB) *RunRepositorySQLite {
	return &RunRepositorySQLite{db: db}
}

func (r *RunRepositorySQLite) Start(ctx context.Context, rec domain.RunRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: run id is required", domain.ErrInvalidInput)
	}
	startedAt := rec.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO reel_runs (id, status, stage, input_kind, started_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE
SET status = excluded.status,
    stage = excluded.stage,
    input_kind = excluded.input_kind,
    caption = '',
    failed_stage = '',
    error = '',
    started_at = excluded.started_at,
    finished_at = NULL`,
		rec.ID, string(rec.Status), string(rec.Stage), rec.InputKind, formatTime(startedAt))
	return err
}

func (r *RunRepositorySQLite) UpdateStage(ctx context.Context, runID string, stage domain.Stage) error {
	res, err := r.db.ExecContext(ctx, `UPDATE reel_runs SET stage = ? WHERE id = ?`, string(stage), runID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *RunRepositorySQLite) Finish(ctx context.Context, rec domain.RunRecord) error {
	finishedAt := time.Now().UTC()
	if rec.FinishedAt != nil {
		finishedAt = *rec.FinishedAt
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE reel_runs
SET status = ?, stage = ?, caption = ?, failed_stage = ?, error = ?, finished_at = ?
WHERE id = ?`,
		string(rec.Status), string(rec.Stage), rec.Caption, string(rec.FailedStage), rec.Error,
		formatTime(finishedAt), rec.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *RunRepositorySQLite) GetByID(ctx context.Context, runID string) (*domain.RunRecord, error) {
	var (
		rec                        domain.RunRecord
		status, stage, failedStage string
		startedAt                  string
		finishedAt                 sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
SELECT id, status, stage, input_kind, caption, failed_stage, error, started_at, finished_at
FROM reel_runs WHERE id = ?`, runID).Scan(
		&rec.ID, &status, &stage, &rec.InputKind, &rec.Caption, &failedStage, &rec.Error,
		&startedAt, &finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Status = domain.RunStatus(status)
	rec.Stage = domain.Stage(stage)
	rec.FailedStage = domain.Stage(failedStage)
	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		rec.FinishedAt = &t
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.RunRepository = (*RunRepositorySQLite)(nil)
