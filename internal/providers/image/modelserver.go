package image

import (
	"context"

	"reelgen/internal/domain"
	"reelgen/internal/providers/modelserver"
)

type modelServerImageClient interface {
	Image(ctx context.Context, prompt string, reference []byte) (*modelserver.Media, error)
}

// ModelServerSynthesizer produces stills on a self-hosted diffusion server.
type ModelServerSynthesizer struct {
	client modelServerImageClient
}

// NewModelServerSynthesizer wires the model server client.
func NewModelServerSynthesizer(client modelServerImageClient) *ModelServerSynthesizer {
	return &ModelServerSynthesizer{client: client}
}

// Synthesize fulfils the Synthesizer interface.
func (m *ModelServerSynthesizer) Synthesize(ctx context.Context, req Request) (*domain.MediaArtifact, error) {
	media, err := m.client.Image(ctx, BuildStillPrompt(req.Prompt, len(req.Reference) > 0), req.Reference)
	if err != nil {
		return nil, domain.NewSynthesisError(domain.MediaKindImage, req.Prompt, err)
	}
	return domain.NewArtifact(domain.MediaKindImage, normalizeFormat(media.Format), media.Data), nil
}

var _ Synthesizer = (*ModelServerSynthesizer)(nil)
