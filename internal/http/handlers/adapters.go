package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"reelgen/internal/domain"
	"reelgen/internal/middleware"
	"reelgen/internal/planner"
	"reelgen/internal/providers/image"
	"reelgen/internal/providers/speech"
	"reelgen/internal/providers/transcribe"
	"reelgen/internal/providers/video"
)

// The handlers below expose each pipeline stage on its own. They apply the
// same stage timeouts as a full run but never retry.

type transcriptionResponse struct {
	Text string `json:"text"`
}

type planResponse struct {
	domain.ContentPlan
	CaptionOverLimit bool `json:"caption_over_limit"`
}

func (a *App) Transcribe(w http.ResponseWriter, r *http.Request) {
	if a.Transcriber == nil {
		a.fail(w, r, &domain.StageError{Stage: domain.StageTranscribing, Err: fmt.Errorf("%w: no transcriber configured", domain.ErrConfiguration)})
		return
	}
	p, err := a.readPayload(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	audio, ok, err := p.file("audio")
	if err == nil && !ok {
		err = fmt.Errorf("%w: audio is required", domain.ErrInvalidInput)
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	sampleRate, err := p.int("sample_rate")
	if err != nil {
		a.fail(w, r, err)
		return
	}

	var text string
	err = a.within(r, domain.StageTranscribing, a.Timeouts.Transcribe, func(ctx context.Context) error {
		text, err = a.Transcriber.Transcribe(ctx, transcribe.Request{Audio: audio, SampleRate: sampleRate})
		return err
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, transcriptionResponse{Text: text})
}

func (a *App) CreatePlan(w http.ResponseWriter, r *http.Request) {
	p, err := a.readPayload(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	req := planner.Request{
		Text:   p.value("text"),
		Locale: middleware.LocaleFromContext(r.Context()),
		Region: middleware.CountryFromContext(r.Context()),
	}

	var plan domain.ContentPlan
	err = a.within(r, domain.StagePlanning, a.Timeouts.Plan, func(ctx context.Context) error {
		plan, err = a.Planner.Plan(ctx, req)
		return err
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if plan.CaptionOverLimit() {
		w.Header().Set("X-Caption-Over-Limit", "true")
	}
	a.json(w, http.StatusOK, planResponse{ContentPlan: plan, CaptionOverLimit: plan.CaptionOverLimit()})
}

func (a *App) CreateImage(w http.ResponseWriter, r *http.Request) {
	p, err := a.readPayload(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	req := image.Request{Prompt: p.value("prompt"), RunID: middleware.RequestIDFromContext(r.Context())}
	if req.Prompt == "" {
		a.fail(w, r, fmt.Errorf("%w: prompt is required", domain.ErrInvalidInput))
		return
	}
	if req.Reference, _, err = p.file("reference_image"); err != nil {
		a.fail(w, r, err)
		return
	}

	var still *domain.MediaArtifact
	err = a.within(r, domain.StageSynthesizingImage, a.Timeouts.Image, func(ctx context.Context) error {
		still, err = a.Images.Synthesize(ctx, req)
		return err
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeArtifact(w, "image-"+req.RunID, still)
}

func (a *App) CreateVideo(w http.ResponseWriter, r *http.Request) {
	p, err := a.readPayload(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	prompt := p.value("prompt")
	start, ok, err := p.file("image")
	if err == nil && (prompt == "" || !ok || len(start) == 0) {
		err = fmt.Errorf("%w: prompt and image are required", domain.ErrInvalidInput)
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	req := video.Request{
		Prompt: prompt,
		Start:  domain.NewArtifact(domain.MediaKindImage, imageFormat(start), start),
		RunID:  middleware.RequestIDFromContext(r.Context()),
	}

	var clip *domain.MediaArtifact
	err = a.within(r, domain.StageSynthesizingVideo, a.Timeouts.Video, func(ctx context.Context) error {
		clip, err = a.Videos.Synthesize(ctx, req)
		return err
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeArtifact(w, "video-"+req.RunID, clip)
}

func (a *App) CreateSpeech(w http.ResponseWriter, r *http.Request) {
	p, err := a.readPayload(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	req := speech.Request{Script: p.value("script"), Style: p.value("style"), RunID: middleware.RequestIDFromContext(r.Context())}
	if req.Script == "" {
		a.fail(w, r, fmt.Errorf("%w: script is required", domain.ErrInvalidInput))
		return
	}

	var narration *domain.MediaArtifact
	err = a.within(r, domain.StageSynthesizingAudio, a.Timeouts.Speech, func(ctx context.Context) error {
		narration, err = a.Voices.Synthesize(ctx, req)
		return err
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeArtifact(w, "speech-"+req.RunID, narration)
}

func (a *App) CreateComposition(w http.ResponseWriter, r *http.Request) {
	p, err := a.readPayload(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	clip, okVideo, err := p.file("video")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	narration, okAudio, err := p.file("audio")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !okVideo || !okAudio {
		a.fail(w, r, fmt.Errorf("%w: video and audio are required", domain.ErrInvalidInput))
		return
	}

	var final *domain.MediaArtifact
	err = a.within(r, domain.StageCompositing, a.Timeouts.Compose, func(ctx context.Context) error {
		final, err = a.Compositor.Mux(ctx,
			domain.NewArtifact(domain.MediaKindVideo, sniffType(clip, "video/mp4"), clip),
			domain.NewArtifact(domain.MediaKindAudio, sniffType(narration, "audio/wav"), narration))
		return err
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeArtifact(w, "composition-"+middleware.RequestIDFromContext(r.Context()), final)
}

// within runs fn under the stage timeout and tags failures with the stage.
func (a *App) within(r *http.Request, stage domain.Stage, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx := r.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := fn(ctx); err != nil {
		return &domain.StageError{Stage: stage, Err: err}
	}
	return nil
}

// imageFormat returns the MIME type of an uploaded still.
func imageFormat(data []byte) string {
	switch ct := http.DetectContentType(data); ct {
	case "image/jpeg", "image/webp", "image/gif":
		return ct
	default:
		return "image/png"
	}
}

// sniffType returns the detected audio or video MIME type of an upload, or
// fallback when detection finds nothing more specific.
func sniffType(data []byte, fallback string) string {
	ct := domain.MediaType(http.DetectContentType(data))
	if strings.HasPrefix(ct, "audio/") || strings.HasPrefix(ct, "video/") {
		return ct
	}
	return fallback
}
