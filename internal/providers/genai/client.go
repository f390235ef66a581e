package genai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "google.golang.org/genai"

	"reelgen/internal/domain"
	"reelgen/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("genai: api key is required")

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey       string
	TextModel    string
	VideoModel   string
	AspectRatio  string
	HTTPClient   *http.Client
	PollInterval time.Duration
	Logger       *infra.Logger
}

// Client is a thin facade over the Gemini API SDK exposing the two calls the
// pipeline needs: structured text generation and image-to-video generation.
type Client struct {
	sdk          *sdk.Client
	textModel    string
	videoModel   string
	aspectRatio  string
	pollInterval time.Duration
	logger       *infra.Logger
}

// VideoRequest represents the information required to generate a video from
// a starting still.
type VideoRequest struct {
	Prompt     string
	Image      []byte
	ImageMIME  string
	RunID      string
	Negative   string
	NumSeconds int
}

// VideoAsset is the normalized representation of a generated video.
type VideoAsset struct {
	URI    string
	Format string
	Data   []byte
}

// NewClient constructs a client bound to the Gemini API backend.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	inner, err := sdk.NewClient(ctx, &sdk.ClientConfig{
		APIKey:     apiKey,
		Backend:    sdk.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("genai: new client: %w", err)
	}
	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = "gemini-2.0-flash"
	}
	videoModel := strings.TrimSpace(opts.VideoModel)
	if videoModel == "" {
		videoModel = "veo-2.0-generate-001"
	}
	aspect := strings.TrimSpace(opts.AspectRatio)
	if aspect == "" {
		aspect = "16:9"
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		sdk:          inner,
		textModel:    textModel,
		videoModel:   videoModel,
		aspectRatio:  aspect,
		pollInterval: poll,
		logger:       logger,
	}, nil
}

// TextModel returns the configured text model identifier.
func (c *Client) TextModel() string {
	return c.textModel
}

// VideoModel returns the configured video model identifier.
func (c *Client) VideoModel() string {
	return c.videoModel
}

// Complete sends one user message under a system instruction and asks for a
// JSON response. The raw response text is returned unparsed.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	cfg := &sdk.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      sdk.Ptr[float32](0.7),
		CandidateCount:   1,
	}
	if strings.TrimSpace(system) != "" {
		cfg.SystemInstruction = sdk.NewContentFromText(system, sdk.RoleUser)
	}
	resp, err := c.sdk.Models.GenerateContent(ctx, c.textModel, sdk.Text(user), cfg)
	if err != nil {
		return "", mapError("generate content", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("genai: empty response")
	}
	return text, nil
}

// GenerateVideo starts a long-running image-to-video operation, polls it
// until completion (or ctx expiry) and downloads the first generated clip.
func (c *Client) GenerateVideo(ctx context.Context, req VideoRequest) (*VideoAsset, error) {
	if len(req.Image) == 0 {
		return nil, errors.New("genai: start image is required")
	}
	mime := req.ImageMIME
	if mime == "" {
		mime = "image/png"
	}
	cfg := &sdk.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    c.aspectRatio,
		NegativePrompt: strings.TrimSpace(req.Negative),
	}
	if req.NumSeconds > 0 {
		cfg.DurationSeconds = sdk.Ptr(int32(req.NumSeconds))
	}
	op, err := c.sdk.Models.GenerateVideos(ctx, c.videoModel, req.Prompt, &sdk.Image{ImageBytes: req.Image, MIMEType: mime}, cfg)
	if err != nil {
		return nil, mapError("generate videos", err)
	}
	c.logger.Debug().Str("run_id", req.RunID).Str("operation", op.Name).Msg("genai: video operation started")

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		op, err = c.sdk.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return nil, mapError("poll video operation", err)
		}
	}
	if op.Error != nil {
		return nil, fmt.Errorf("genai: video operation failed: %v", op.Error)
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return nil, errors.New("genai: video operation returned no video")
	}
	generated := op.Response.GeneratedVideos[0]
	data := generated.Video.VideoBytes
	if len(data) == 0 {
		data, err = c.sdk.Files.Download(ctx, sdk.NewDownloadURIFromGeneratedVideo(generated), nil)
		if err != nil {
			return nil, mapError("download video", err)
		}
	}
	format := generated.Video.MIMEType
	if format == "" {
		format = "video/mp4"
	}
	c.logger.Debug().Str("run_id", req.RunID).Int("bytes", len(data)).Msg("genai: video downloaded")
	return &VideoAsset{URI: generated.Video.URI, Format: format, Data: data}, nil
}

// MediaAnalysisRequest asks the text model to reason over an uploaded clip.
type MediaAnalysisRequest struct {
	Data     []byte
	MIMEType string
	System   string
	Prompt   string
}

// AnalyzeMedia uploads the clip through the Files API, waits until it is
// ACTIVE, and asks the text model for a JSON answer about it. The uploaded
// file is deleted afterwards.
func (c *Client) AnalyzeMedia(ctx context.Context, req MediaAnalysisRequest) (string, error) {
	if len(req.Data) == 0 {
		return "", errors.New("genai: media is required")
	}
	mime := req.MIMEType
	if mime == "" {
		mime = "video/mp4"
	}
	file, err := c.sdk.Files.Upload(ctx, bytes.NewReader(req.Data), &sdk.UploadFileConfig{MIMEType: mime})
	if err != nil {
		return "", mapError("upload file", err)
	}
	defer func() {
		// The request context may already be done here.
		delCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := c.sdk.Files.Delete(delCtx, file.Name, nil); err != nil {
			c.logger.Warn().Err(err).Str("file", file.Name).Msg("genai: delete uploaded file failed")
		}
	}()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for file.State == sdk.FileStateProcessing {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
		file, err = c.sdk.Files.Get(ctx, file.Name, nil)
		if err != nil {
			return "", mapError("get file", err)
		}
	}
	if file.State == sdk.FileStateFailed {
		return "", fmt.Errorf("genai: file %s failed processing", file.Name)
	}
	c.logger.Debug().Str("file", file.Name).Int("bytes", len(req.Data)).Msg("genai: media ready")

	cfg := &sdk.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      sdk.Ptr[float32](0.5),
		TopP:             sdk.Ptr[float32](0.95),
		MaxOutputTokens:  2048,
		CandidateCount:   1,
	}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = sdk.NewContentFromText(req.System, sdk.RoleUser)
	}
	contents := []*sdk.Content{sdk.NewContentFromParts([]*sdk.Part{
		sdk.NewPartFromText(req.Prompt),
		sdk.NewPartFromURI(file.URI, file.MIMEType),
	}, sdk.RoleUser)}
	resp, err := c.sdk.Models.GenerateContent(ctx, c.textModel, contents, cfg)
	if err != nil {
		return "", mapError("analyze media", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("genai: empty response")
	}
	return text, nil
}

// mapError turns API status failures into domain.StatusError so rate limits
// and 5xx answers are retried like every other provider's.
func mapError(op string, err error) error {
	var apiErr sdk.APIError
	if errors.As(err, &apiErr) && apiErr.Code > 0 {
		return &domain.StatusError{Service: "genai", StatusCode: apiErr.Code, Message: op + ": " + apiErr.Message}
	}
	var apiPtr *sdk.APIError
	if errors.As(err, &apiPtr) && apiPtr != nil && apiPtr.Code > 0 {
		return &domain.StatusError{Service: "genai", StatusCode: apiPtr.Code, Message: op + ": " + apiPtr.Message}
	}
	return fmt.Errorf("genai: %s: %w", op, err)
}
