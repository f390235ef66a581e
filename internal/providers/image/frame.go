package image

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"

	"reelgen/internal/domain"
)

// FrameFitter crops and scales every still to the video model's frame size
// and re-encodes it as PNG, so the video stage always receives one format.
type FrameFitter struct {
	next   Synthesizer
	width  int
	height int
}

// WithFrame wraps next with frame fitting. Non-positive sizes disable it.
func WithFrame(next Synthesizer, width, height int) Synthesizer {
	if width <= 0 || height <= 0 {
		return next
	}
	return &FrameFitter{next: next, width: width, height: height}
}

// Synthesize fulfils the Synthesizer interface.
func (f *FrameFitter) Synthesize(ctx context.Context, req Request) (*domain.MediaArtifact, error) {
	art, err := f.next.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	fitted, err := FitFrame(art.Bytes(), f.width, f.height)
	if err != nil {
		return nil, domain.NewSynthesisError(domain.MediaKindImage, req.Prompt, err)
	}
	return domain.NewArtifact(domain.MediaKindImage, "image/png", fitted), nil
}

// FitFrame decodes data, fills a width x height frame centred on the subject
// and returns PNG bytes.
func FitFrame(data []byte, width, height int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode still: %w", err)
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		img = imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode still: %w", err)
	}
	return buf.Bytes(), nil
}
