package image

import (
	"context"

	"reelgen/internal/domain"
)

// Request describes one still image to synthesize.
type Request struct {
	Prompt    string
	Reference []byte
	RunID     string
}

// Synthesizer is the contract implemented by all image providers. With a
// reference image the provider performs image-conditioned generation.
// Failures are *domain.SynthesisError values.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*domain.MediaArtifact, error)
}

// SynthesizerFunc adapts a function to the Synthesizer interface.
type SynthesizerFunc func(ctx context.Context, req Request) (*domain.MediaArtifact, error)

// Synthesize calls f.
func (f SynthesizerFunc) Synthesize(ctx context.Context, req Request) (*domain.MediaArtifact, error) {
	return f(ctx, req)
}
