package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"reelgen/internal/domain"
	"reelgen/internal/pipeline"
)

const eventsHeartbeat = 15 * time.Second

type runResponse struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Stage       string     `json:"stage"`
	InputKind   string     `json:"input_kind"`
	Caption     string     `json:"caption,omitempty"`
	FailedStage string     `json:"failed_stage,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	DurationMS  int64      `json:"duration_ms,omitempty"`
}

func (a *App) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if a.Ledger == nil {
		a.fail(w, r, fmt.Errorf("%w: run ledger is disabled", domain.ErrNotFound))
		return
	}
	rec, err := a.Ledger.GetByID(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := runResponse{
		ID:          rec.ID,
		Status:      string(rec.Status),
		Stage:       string(rec.Stage),
		InputKind:   rec.InputKind,
		Caption:     rec.Caption,
		FailedStage: string(rec.FailedStage),
		Error:       rec.Error,
		StartedAt:   rec.StartedAt,
		FinishedAt:  rec.FinishedAt,
	}
	if rec.FinishedAt != nil {
		resp.DurationMS = rec.FinishedAt.Sub(rec.StartedAt).Milliseconds()
	}
	a.json(w, http.StatusOK, resp)
}

// RunEvents streams a run's stage events as server-sent events. Events
// published before the client connected are replayed first. The stream ends
// when the run finishes or the client goes away.
func (a *App) RunEvents(w http.ResponseWriter, r *http.Request) {
	if a.Events == nil {
		a.fail(w, r, fmt.Errorf("%w: progress events are disabled", domain.ErrNotFound))
		return
	}
	id := chi.URLParam(r, "id")
	rc := http.NewResponseController(w)

	backlog, updates, cancel := a.Events.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_ = rc.SetWriteDeadline(time.Time{})

	for _, e := range backlog {
		if err := writeEvent(w, e); err != nil {
			return
		}
	}
	if err := rc.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(eventsHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case e, ok := <-updates:
			if !ok {
				_, _ = fmt.Fprint(w, "event: end\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}
			if err := writeEvent(w, e); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, e pipeline.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: stage\ndata: %s\n\n", data)
	return err
}
