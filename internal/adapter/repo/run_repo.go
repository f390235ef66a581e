package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"reelgen/internal/domain"
	"reelgen/internal/infra"
	"reelgen/internal/sqlinline"
)

// RunRepositoryPG implements domain.RunRepository on PostgreSQL.
type RunRepositoryPG struct {
	db infra.SQLExecutor
}

// NewRunRepository wraps db, which is normally an *infra.SQLRunner so every
// statement is logged by its marker.
func NewRunRepository(db infra.SQLExecutor) *RunRepositoryPG {
	return &RunRepositoryPG{db: db}
}

// EnsureSchema creates the ledger table when it does not exist yet.
func (r *RunRepositoryPG) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, sqlinline.QRunsEnsureTable); err != nil {
		return fmt.Errorf("ensure reel_runs: %w", err)
	}
	return nil
}

func (r *RunRepositoryPG) Start(ctx context.Context, rec domain.RunRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: run id is required", domain.ErrInvalidInput)
	}
	startedAt := rec.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, sqlinline.QRunsInsert,
		rec.ID,
		string(rec.Status),
		string(rec.Stage),
		rec.InputKind,
		startedAt,
	)
	return err
}

func (r *RunRepositoryPG) UpdateStage(ctx context.Context, runID string, stage domain.Stage) error {
	tag, err := r.db.Exec(ctx, sqlinline.QRunsUpdateStage, runID, string(stage))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *RunRepositoryPG) Finish(ctx context.Context, rec domain.RunRecord) error {
	finishedAt := time.Now().UTC()
	if rec.FinishedAt != nil {
		finishedAt = *rec.FinishedAt
	}
	tag, err := r.db.Exec(ctx, sqlinline.QRunsFinish,
		rec.ID,
		string(rec.Status),
		string(rec.Stage),
		rec.Caption,
		string(rec.FailedStage),
		rec.Error,
		finishedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a run by its identifier.
func (r *RunRepositoryPG) GetByID(ctx context.Context, runID string) (*domain.RunRecord, error) {
	var (
		rec         domain.RunRecord
		status      string
		stage       string
		failedStage string
	)
	err := r.db.QueryRow(ctx, sqlinline.QRunsGetByID, runID).Scan(
		&rec.ID,
		&status,
		&stage,
		&rec.InputKind,
		&rec.Caption,
		&failedStage,
		&rec.Error,
		&rec.StartedAt,
		&rec.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	rec.Status = domain.RunStatus(status)
	rec.Stage = domain.Stage(stage)
	rec.FailedStage = domain.Stage(failedStage)
	return &rec, nil
}

var _ domain.RunRepository = (*RunRepositoryPG)(nil)
