package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reelgen/internal/domain"
	"reelgen/internal/middleware"
	"reelgen/pkg/zip"
)

type bundlePlan struct {
	RunID            string             `json:"run_id"`
	Transcript       string             `json:"transcript,omitempty"`
	Plan             domain.ContentPlan `json:"plan"`
	CaptionOverLimit bool               `json:"caption_over_limit"`
}

// CreateReel runs the full pipeline and answers with the finished MP4, or a
// zip bundle when the client accepts application/zip.
func (a *App) CreateReel(w http.ResponseWriter, r *http.Request) {
	in, err := a.runInput(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	res, err := a.Pipeline.Run(r.Context(), middleware.RequestIDFromContext(r.Context()), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	w.Header().Set("X-Run-ID", res.RunID)
	if res.Plan.CaptionOverLimit() {
		w.Header().Set("X-Caption-Over-Limit", "true")
	}
	if wantsZip(r) {
		a.writeBundle(w, r, res)
		return
	}
	a.writeArtifact(w, "reel-"+res.RunID, res.Video)
}

func (a *App) runInput(w http.ResponseWriter, r *http.Request) (domain.RunInput, error) {
	p, err := a.readPayload(w, r)
	if err != nil {
		return domain.RunInput{}, err
	}
	in := domain.RunInput{
		Text:   p.value("text"),
		Locale: middleware.LocaleFromContext(r.Context()),
		Region: middleware.CountryFromContext(r.Context()),
	}
	audio, hasAudio, err := p.file("audio")
	if err != nil {
		return in, err
	}
	if in.Text == "" && !hasAudio {
		return in, fmt.Errorf("%w: provide text or an audio file", domain.ErrInvalidInput)
	}
	if in.Text == "" {
		in.Audio = audio
		if in.SampleRate, err = p.int("sample_rate"); err != nil {
			return in, err
		}
	}
	if ref, ok, err := p.file("reference_image"); err != nil {
		return in, err
	} else if ok && len(ref) > 0 {
		in.ReferenceImage = ref
	}
	return in, nil
}

func wantsZip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType := strings.TrimSpace(strings.Split(part, ";")[0])
		if strings.EqualFold(mediaType, "application/zip") {
			return true
		}
	}
	return false
}

func (a *App) writeBundle(w http.ResponseWriter, r *http.Request, res *domain.RunResult) {
	planJSON, err := json.MarshalIndent(bundlePlan{
		RunID:            res.RunID,
		Transcript:       res.Transcript,
		Plan:             res.Plan,
		CaptionOverLimit: res.Plan.CaptionOverLimit(),
	}, "", "  ")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	archive, err := zip.Archive([]zip.Asset{
		{Filename: "reel" + res.Video.Extension(), Data: res.Video.Bytes()},
		{Filename: "plan.json", Data: planJSON},
		{Filename: "caption.txt", Data: []byte(res.Plan.Caption + "\n")},
	}, time.Now())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=reel-%s.zip", res.RunID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
