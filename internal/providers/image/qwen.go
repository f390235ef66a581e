package image

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"

	"reelgen/internal/domain"
	"reelgen/internal/providers/qwen"
)

type qwenImageClient interface {
	GenerateImage(context.Context, qwen.ImageRequest) (*qwen.ImageAsset, error)
	HasCredentials() bool
	Model() string
}

// QwenSynthesizer produces stills with DashScope's Qwen image models.
type QwenSynthesizer struct {
	client qwenImageClient
	size   string
}

// NewQwenSynthesizer wires a Qwen client. size is DashScope's "W*H" notation.
func NewQwenSynthesizer(client qwenImageClient, width, height int) *QwenSynthesizer {
	size := ""
	if width > 0 && height > 0 {
		size = qwenSize(width, height)
	}
	return &QwenSynthesizer{client: client, size: size}
}

// Synthesize fulfils the Synthesizer interface.
func (g *QwenSynthesizer) Synthesize(ctx context.Context, req Request) (*domain.MediaArtifact, error) {
	prompt := BuildStillPrompt(req.Prompt, len(req.Reference) > 0)
	if g == nil || g.client == nil {
		return nil, domain.NewSynthesisError(domain.MediaKindImage, req.Prompt, fmt.Errorf("qwen synthesizer not configured"))
	}
	if !g.client.HasCredentials() {
		return nil, domain.NewSynthesisError(domain.MediaKindImage, req.Prompt, qwen.ErrMissingAPIKey)
	}
	asset, err := g.client.GenerateImage(ctx, qwen.ImageRequest{
		Prompt:         prompt,
		NegativePrompt: DefaultNegativePrompt,
		Size:           g.size,
		Seed:           deterministicSeed(req.RunID, prompt),
		RunID:          req.RunID,
		Reference:      req.Reference,
	})
	if err != nil {
		return nil, domain.NewSynthesisError(domain.MediaKindImage, req.Prompt, err)
	}
	if len(asset.Data) == 0 {
		return nil, domain.NewSynthesisError(domain.MediaKindImage, req.Prompt, fmt.Errorf("qwen returned no image data"))
	}
	return domain.NewArtifact(domain.MediaKindImage, normalizeFormat(asset.Format), asset.Data), nil
}

func (g *QwenSynthesizer) String() string {
	if g == nil || g.client == nil {
		return "qwen"
	}
	return g.client.Model()
}

var _ Synthesizer = (*QwenSynthesizer)(nil)

// qwenSize picks the closest supported DashScope size for the frame's
// orientation.
func qwenSize(width, height int) string {
	switch {
	case width > height:
		return "1664*928"
	case height > width:
		return "928*1664"
	default:
		return "1328*1328"
	}
}

func deterministicSeed(values ...any) int {
	if len(values) == 0 {
		return 0
	}
	var parts []string
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	n := binary.BigEndian.Uint32(sum[:4])
	value := int(n % 2147483647)
	if value <= 0 {
		fallback := binary.BigEndian.Uint32(sum[4:8]) % 2147483647
		if fallback == 0 {
			fallback = 1
		}
		value = int(fallback)
	}
	return value
}

func normalizeFormat(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(strings.Split(mime, ";")[0]))
	switch mime {
	case "image/jpeg", "image/jpg":
		return "image/jpeg"
	case "image/png":
		return "image/png"
	default:
		if strings.HasPrefix(mime, "image/") {
			return mime
		}
		return "image/png"
	}
}
