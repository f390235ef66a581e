package video

import (
	"context"

	"reelgen/internal/domain"
	"reelgen/internal/providers/modelserver"
)

type modelServerVideoClient interface {
	Video(ctx context.Context, prompt string, image []byte, params modelserver.VideoParams) (*modelserver.Media, error)
}

// ModelServer animates stills on a self-hosted image-to-video diffusion
// server. Step count and guidance scale are fixed at construction.
type ModelServer struct {
	client modelServerVideoClient
	params modelserver.VideoParams
}

// NewModelServer wires the model server client with the configured tunables.
func NewModelServer(client modelServerVideoClient, steps int, guidance float64) *ModelServer {
	return &ModelServer{client: client, params: modelserver.VideoParams{Steps: steps, Guidance: guidance}}
}

// Synthesize fulfils the Synthesizer interface.
func (m *ModelServer) Synthesize(ctx context.Context, req Request) (*domain.MediaArtifact, error) {
	data, _, err := startImage(req)
	if err != nil {
		return nil, err
	}
	media, err := m.client.Video(ctx, req.Prompt, data, m.params)
	if err != nil {
		return nil, domain.NewSynthesisError(domain.MediaKindVideo, req.Prompt, err)
	}
	return domain.NewArtifact(domain.MediaKindVideo, media.Format, media.Data), nil
}

var _ Synthesizer = (*ModelServer)(nil)
