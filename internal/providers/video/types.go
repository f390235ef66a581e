package video

import (
	"context"

	"reelgen/internal/domain"
)

// Request asks for a short clip that animates Start following Prompt.
type Request struct {
	Prompt string
	Start  *domain.MediaArtifact
	RunID  string
}

// Synthesizer animates a still image into a short clip at the model's native
// duration and frame rate. Failures are *domain.SynthesisError values.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*domain.MediaArtifact, error)
}

func startImage(req Request) ([]byte, string, error) {
	if req.Start == nil || req.Start.Empty() {
		return nil, "", domain.NewSynthesisError(domain.MediaKindVideo, req.Prompt, errMissingStart)
	}
	if req.Start.Kind != domain.MediaKindImage {
		return nil, "", domain.NewSynthesisError(domain.MediaKindVideo, req.Prompt, errStartNotImage)
	}
	return req.Start.Bytes(), req.Start.Format, nil
}
