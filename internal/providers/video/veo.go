package video

import (
	"context"
	"errors"

	"reelgen/internal/domain"
	"reelgen/internal/providers/genai"
)

var (
	errMissingStart  = errors.New("start image is required")
	errStartNotImage = errors.New("start artifact is not an image")
)

type veoClient interface {
	GenerateVideo(ctx context.Context, req genai.VideoRequest) (*genai.VideoAsset, error)
}

// Veo animates stills with Google's Veo model through the Gemini API.
type Veo struct {
	client   veoClient
	negative string
}

// NewVeo wires a Gemini client.
func NewVeo(client veoClient) *Veo {
	return &Veo{client: client, negative: "text overlays, subtitles, watermark, distorted product"}
}

// Synthesize fulfils the Synthesizer interface.
func (v *Veo) Synthesize(ctx context.Context, req Request) (*domain.MediaArtifact, error) {
	data, mime, err := startImage(req)
	if err != nil {
		return nil, err
	}
	asset, err := v.client.GenerateVideo(ctx, genai.VideoRequest{
		Prompt:    req.Prompt,
		Image:     data,
		ImageMIME: mime,
		RunID:     req.RunID,
		Negative:  v.negative,
	})
	if err != nil {
		return nil, domain.NewSynthesisError(domain.MediaKindVideo, req.Prompt, err)
	}
	if len(asset.Data) == 0 {
		return nil, domain.NewSynthesisError(domain.MediaKindVideo, req.Prompt, errors.New("veo returned an empty clip"))
	}
	return domain.NewArtifact(domain.MediaKindVideo, asset.Format, asset.Data), nil
}

var _ Synthesizer = (*Veo)(nil)
