package repo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"reelgen/internal/domain"
)

func newSQLiteRepo(t *testing.T) *RunRepositorySQLite {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRunRepositorySQLite(db)
}

func TestRunRepositorySQLiteLifecycle(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	started := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	if err := repo.Start(ctx, domain.RunRecord{
		ID:        "run-1",
		Status:    domain.RunStatusRunning,
		Stage:     domain.StageReceived,
		InputKind: "text",
		StartedAt: started,
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := repo.UpdateStage(ctx, "run-1", domain.StagePlanning); err != nil {
		t.Fatalf("update stage: %v", err)
	}

	rec, err := repo.GetByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Stage != domain.StagePlanning || rec.Status != domain.RunStatusRunning {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.StartedAt.Equal(started) {
		t.Fatalf("started_at = %v, want %v", rec.StartedAt, started)
	}
	if rec.FinishedAt != nil {
		t.Fatalf("finished_at should be empty while running")
	}

	finished := started.Add(90 * time.Second)
	if err := repo.Finish(ctx, domain.RunRecord{
		ID:          "run-1",
		Status:      domain.RunStatusFailed,
		Stage:       domain.StageFailed,
		FailedStage: domain.StageSynthesizingAudio,
		Error:       "synthesis failed",
		FinishedAt:  &finished,
	}); err != nil {
		t.Fatalf("finish: %v", err)
	}

	rec, err = repo.GetByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("get after finish: %v", err)
	}
	if rec.FailedStage != domain.StageSynthesizingAudio || rec.Error != "synthesis failed" {
		t.Fatalf("unexpected failure fields %+v", rec)
	}
	if rec.FinishedAt == nil || !rec.FinishedAt.Equal(finished) {
		t.Fatalf("finished_at = %v, want %v", rec.FinishedAt, finished)
	}
}

func TestRunRepositorySQLiteRestartResetsRecord(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	first := domain.RunRecord{ID: "run-2", Status: domain.RunStatusRunning, Stage: domain.StageReceived, InputKind: "audio"}
	if err := repo.Start(ctx, first); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := repo.Finish(ctx, domain.RunRecord{ID: "run-2", Status: domain.RunStatusSucceeded, Stage: domain.StageDone, Caption: "hi"}); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := repo.Start(ctx, first); err != nil {
		t.Fatalf("restart: %v", err)
	}
	rec, err := repo.GetByID(ctx, "run-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Caption != "" || rec.FinishedAt != nil || rec.Status != domain.RunStatusRunning {
		t.Fatalf("restart should clear the previous outcome, got %+v", rec)
	}
}

func TestRunRepositorySQLiteNotFound(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get missing: %v", err)
	}
	if err := repo.UpdateStage(ctx, "missing", domain.StagePlanning); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update missing: %v", err)
	}
	if err := repo.Start(ctx, domain.RunRecord{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("start without id: %v", err)
	}
}
