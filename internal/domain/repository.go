package domain

import "context"

// RunRepository persists run metadata for status lookups.
type RunRepository interface {
	Start(ctx context.Context, rec RunRecord) error
	UpdateStage(ctx context.Context, runID string, stage Stage) error
	Finish(ctx context.Context, rec RunRecord) error
	GetByID(ctx context.Context, runID string) (*RunRecord, error)
}
