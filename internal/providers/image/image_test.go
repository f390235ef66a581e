package image

import (
	"bytes"
	"context"
	"errors"
	stdimage "image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"reelgen/internal/domain"
	"reelgen/internal/providers/modelserver"
	"reelgen/internal/providers/qwen"
)

type stubQwenClient struct {
	asset          *qwen.ImageAsset
	err            error
	hasCredentials bool
	requests       []qwen.ImageRequest
}

func (s *stubQwenClient) GenerateImage(_ context.Context, req qwen.ImageRequest) (*qwen.ImageAsset, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.asset, nil
}

func (s *stubQwenClient) HasCredentials() bool { return s.hasCredentials }

func (s *stubQwenClient) Model() string { return "qwen-image-plus" }

type stubModelServer struct {
	media     *modelserver.Media
	err       error
	prompt    string
	reference []byte
}

func (s *stubModelServer) Image(_ context.Context, prompt string, reference []byte) (*modelserver.Media, error) {
	s.prompt, s.reference = prompt, reference
	return s.media, s.err
}

func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestQwenSynthesizerPassesPromptAndReference(t *testing.T) {
	client := &stubQwenClient{hasCredentials: true, asset: &qwen.ImageAsset{Data: []byte("png"), Format: "image/png; charset=binary"}}
	s := NewQwenSynthesizer(client, 720, 480)

	art, err := s.Synthesize(context.Background(), Request{Prompt: "headphones on marble", Reference: []byte("ref"), RunID: "run-1"})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if art.Kind != domain.MediaKindImage || art.Format != "image/png" {
		t.Fatalf("unexpected artifact: %+v", art)
	}
	if len(client.requests) != 1 {
		t.Fatalf("calls = %d, want 1", len(client.requests))
	}
	got := client.requests[0]
	if !strings.HasPrefix(got.Prompt, "headphones on marble") || !strings.Contains(got.Prompt, "uploaded product photo") {
		t.Fatalf("prompt = %q", got.Prompt)
	}
	if string(got.Reference) != "ref" || got.Size != "1664*928" || got.Seed <= 0 {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestQwenSynthesizerWrapsErrors(t *testing.T) {
	cause := errors.New("boom")
	s := NewQwenSynthesizer(&stubQwenClient{hasCredentials: true, err: cause}, 0, 0)

	_, err := s.Synthesize(context.Background(), Request{Prompt: "p"})
	var se *domain.SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *domain.SynthesisError", err)
	}
	if se.Prompt != "p" || se.Kind != domain.MediaKindImage || !errors.Is(err, cause) || !errors.Is(err, domain.ErrSynthesis) {
		t.Fatalf("unexpected synthesis error: %+v", se)
	}
}

func TestQwenSynthesizerMissingCredentials(t *testing.T) {
	s := NewQwenSynthesizer(&stubQwenClient{}, 0, 0)
	_, err := s.Synthesize(context.Background(), Request{Prompt: "p"})
	if !errors.Is(err, qwen.ErrMissingAPIKey) || !errors.Is(err, domain.ErrSynthesis) {
		t.Fatalf("err = %v", err)
	}
}

func TestModelServerSynthesizer(t *testing.T) {
	client := &stubModelServer{media: &modelserver.Media{Data: []byte("png"), Format: "image/png"}}
	s := NewModelServerSynthesizer(client)

	art, err := s.Synthesize(context.Background(), Request{Prompt: "a sneaker"})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if string(art.Bytes()) != "png" || client.reference != nil || !strings.HasPrefix(client.prompt, "a sneaker") {
		t.Fatalf("unexpected call: %q %v", client.prompt, client.reference)
	}

	client.err = errors.New("gpu busy")
	if _, err := s.Synthesize(context.Background(), Request{Prompt: "a sneaker"}); !errors.Is(err, domain.ErrSynthesis) {
		t.Fatalf("err = %v, want synthesis error", err)
	}
}

func TestFrameFitterResizesToFrame(t *testing.T) {
	src := solidPNG(t, 1024, 1024)
	inner := SynthesizerFunc(func(context.Context, Request) (*domain.MediaArtifact, error) {
		return domain.NewArtifact(domain.MediaKindImage, "image/png", src), nil
	})

	art, err := WithFrame(inner, 720, 480).Synthesize(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	cfg, format, err := stdimage.DecodeConfig(bytes.NewReader(art.Bytes()))
	if err != nil {
		t.Fatalf("decode fitted image: %v", err)
	}
	if format != "png" || cfg.Width != 720 || cfg.Height != 480 {
		t.Fatalf("fitted = %s %dx%d, want png 720x480", format, cfg.Width, cfg.Height)
	}
}

func TestFrameFitterRejectsUndecodableImage(t *testing.T) {
	inner := SynthesizerFunc(func(context.Context, Request) (*domain.MediaArtifact, error) {
		return domain.NewArtifact(domain.MediaKindImage, "image/png", []byte("not an image")), nil
	})
	_, err := WithFrame(inner, 720, 480).Synthesize(context.Background(), Request{Prompt: "p"})
	if !errors.Is(err, domain.ErrSynthesis) {
		t.Fatalf("err = %v, want synthesis error", err)
	}
}

func TestWithFrameDisabled(t *testing.T) {
	inner := SynthesizerFunc(func(context.Context, Request) (*domain.MediaArtifact, error) { return nil, nil })
	if _, ok := WithFrame(inner, 0, 480).(SynthesizerFunc); !ok {
		t.Fatal("expected passthrough when size is unset")
	}
}
