// Package speech synthesizes narration for a content plan.
package speech

import (
	"context"
	"errors"
	"strings"

	"reelgen/internal/domain"
	"reelgen/internal/providers/modelserver"
)

// Request carries the script and the description of how it should sound.
type Request struct {
	Script string
	Style  string
	RunID  string
}

// Synthesizer produces a speech clip. Failures are *domain.SynthesisError
// values carrying the script.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*domain.MediaArtifact, error)
}

var errEmptyScript = errors.New("script is empty")

type openAISpeechClient interface {
	Speech(ctx context.Context, script, style string) ([]byte, error)
}

// OpenAI synthesizes speech with an OpenAI TTS model; the style is sent as
// voice instructions.
type OpenAI struct {
	client openAISpeechClient
}

// NewOpenAI wires an OpenAI client.
func NewOpenAI(client openAISpeechClient) *OpenAI {
	return &OpenAI{client: client}
}

// Synthesize fulfils the Synthesizer interface.
func (o *OpenAI) Synthesize(ctx context.Context, req Request) (*domain.MediaArtifact, error) {
	if strings.TrimSpace(req.Script) == "" {
		return nil, domain.NewSynthesisError(domain.MediaKindAudio, req.Script, errEmptyScript)
	}
	data, err := o.client.Speech(ctx, req.Script, req.Style)
	if err != nil {
		return nil, domain.NewSynthesisError(domain.MediaKindAudio, req.Script, err)
	}
	return domain.NewArtifact(domain.MediaKindAudio, "audio/wav", data), nil
}

type modelServerSpeechClient interface {
	Speech(ctx context.Context, script, style string) (*modelserver.Media, error)
}

// ModelServer synthesizes speech on a self-hosted description-conditioned
// TTS server.
type ModelServer struct {
	client modelServerSpeechClient
}

// NewModelServer wires the model server client.
func NewModelServer(client modelServerSpeechClient) *ModelServer {
	return &ModelServer{client: client}
}

// Synthesize fulfils the Synthesizer interface.
func (m *ModelServer) Synthesize(ctx context.Context, req Request) (*domain.MediaArtifact, error) {
	if strings.TrimSpace(req.Script) == "" {
		return nil, domain.NewSynthesisError(domain.MediaKindAudio, req.Script, errEmptyScript)
	}
	media, err := m.client.Speech(ctx, req.Script, req.Style)
	if err != nil {
		return nil, domain.NewSynthesisError(domain.MediaKindAudio, req.Script, err)
	}
	return domain.NewArtifact(domain.MediaKindAudio, media.Format, media.Data), nil
}

var (
	_ Synthesizer = (*OpenAI)(nil)
	_ Synthesizer = (*ModelServer)(nil)
)
