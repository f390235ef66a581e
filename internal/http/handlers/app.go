package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"reelgen/internal/domain"
	"reelgen/internal/infra"
	"reelgen/internal/pipeline"
	"reelgen/internal/providers/image"
	"reelgen/internal/providers/speech"
	"reelgen/internal/providers/transcribe"
	"reelgen/internal/providers/video"
)

// ReelRunner runs one full pipeline.
type ReelRunner interface {
	Run(ctx context.Context, runID string, in domain.RunInput) (*domain.RunResult, error)
}

// App holds the handler dependencies. Ledger and Events may be nil, in
// which case the run lookup endpoints answer 404.
type App struct {
	Pipeline    ReelRunner
	Transcriber transcribe.Transcriber
	Planner     pipeline.Planner
	Images      image.Synthesizer
	Videos      video.Synthesizer
	Voices      speech.Synthesizer
	Compositor  pipeline.Compositor
	Events      *pipeline.Broker
	Ledger      domain.RunRepository
	Timeouts    infra.StageTimeouts

	MaxUploadBytes int64
	Logger         *infra.Logger
}

type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, stage domain.Stage, msg string) {
	a.json(w, code, errorResponse{Error: msg, Stage: string(stage)})
}

// fail maps err onto an HTTP status and writes the {error, stage} body.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	stage, _ := domain.StageOf(err)
	code := statusFor(err)
	logger := a.logger()
	event := logger.Warn()
	if code >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).Str("path", r.URL.Path).Str("stage", string(stage)).Int("status", code).Msg("request failed")
	a.error(w, code, stage, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsTimeout(err):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrTranscription):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUpstreamGeneration), errors.Is(err, domain.ErrSynthesis):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) logger() *infra.Logger {
	if a.Logger == nil {
		return infra.NopLogger()
	}
	return a.Logger
}
