// Package modelserver is the RPC client for self-hosted model processes
// (diffusion video, TTS, ASR, image) that run on separate GPU hosts.
//
// Contract, all under the configured base URL:
//
//	POST /v1/transcribe  multipart: audio (file), sample_rate      -> 200 {"text": string}
//	POST /v1/speech      json: {"script","audio_prompt"}             -> 200 audio/wav bytes
//	POST /v1/image       multipart: prompt, reference (file, opt.)  -> 200 image/png bytes
//	POST /v1/video       multipart: prompt, image (file),
//	                     num_inference_steps, guidance_scale        -> 200 video/mp4 bytes
//
// Failures answer non-2xx with {"error": string}.
package modelserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reelgen/internal/domain"
	"reelgen/internal/infra"
)

const maxPayloadBytes = 512 << 20

// Options configures the model server client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client talks to a model server over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// Media is a binary payload returned by the server.
type Media struct {
	Data   []byte
	Format string
}

// VideoParams are the tunables the video model accepts.
type VideoParams struct {
	Steps    int
	Guidance float64
}

type errorBody struct {
	Error string `json:"error"`
}

// NewClient constructs a client. The base URL is required.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("modelserver: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		// Per-call deadlines come from the caller's context.
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{baseURL: base, httpClient: httpClient, logger: logger}, nil
}

// Transcribe uploads an audio clip and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string, sampleRate int) (string, error) {
	form := newForm()
	if filename == "" {
		filename = "audio.wav"
	}
	form.file("audio", filename, audio)
	if sampleRate > 0 {
		form.field("sample_rate", strconv.Itoa(sampleRate))
	}
	body, contentType, err := form.close()
	if err != nil {
		return "", err
	}
	raw, _, err := c.do(ctx, "/v1/transcribe", contentType, body)
	if err != nil {
		return "", err
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("modelserver: decode transcription: %w", err)
	}
	return out.Text, nil
}

// Speech synthesizes narration conditioned on a style description.
func (c *Client) Speech(ctx context.Context, script, style string) (*Media, error) {
	payload, err := json.Marshal(map[string]string{"script": script, "audio_prompt": style})
	if err != nil {
		return nil, fmt.Errorf("modelserver: encode speech request: %w", err)
	}
	raw, format, err := c.do(ctx, "/v1/speech", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	return &Media{Data: raw, Format: defaultFormat(format, "audio/wav")}, nil
}

// Image generates a still from prompt, optionally conditioned on reference.
func (c *Client) Image(ctx context.Context, prompt string, reference []byte) (*Media, error) {
	form := newForm()
	form.field("prompt", prompt)
	if len(reference) > 0 {
		form.file("reference", "reference.png", reference)
	}
	body, contentType, err := form.close()
	if err != nil {
		return nil, err
	}
	raw, format, err := c.do(ctx, "/v1/image", contentType, body)
	if err != nil {
		return nil, err
	}
	return &Media{Data: raw, Format: defaultFormat(format, "image/png")}, nil
}

// Video animates a start image following prompt.
func (c *Client) Video(ctx context.Context, prompt string, image []byte, params VideoParams) (*Media, error) {
	form := newForm()
	form.field("prompt", prompt)
	form.file("image", "start.png", image)
	if params.Steps > 0 {
		form.field("num_inference_steps", strconv.Itoa(params.Steps))
	}
	if params.Guidance > 0 {
		form.field("guidance_scale", strconv.FormatFloat(params.Guidance, 'f', -1, 64))
	}
	body, contentType, err := form.close()
	if err != nil {
		return nil, err
	}
	raw, format, err := c.do(ctx, "/v1/video", contentType, body)
	if err != nil {
		return nil, err
	}
	return &Media{Data: raw, Format: defaultFormat(format, "video/mp4")}, nil
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, "", fmt.Errorf("modelserver: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("modelserver: %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, "", fmt.Errorf("modelserver: read %s: %w", path, err)
	}
	c.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("modelserver: call finished")

	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		var detail errorBody
		if json.Unmarshal(raw, &detail) == nil && detail.Error != "" {
			msg = detail.Error
		}
		return nil, "", &domain.StatusError{Service: "modelserver" + path, StatusCode: resp.StatusCode, Message: msg}
	}
	if len(raw) == 0 {
		return nil, "", fmt.Errorf("modelserver: %s: empty response", path)
	}
	return raw, resp.Header.Get("Content-Type"), nil
}

func defaultFormat(got, fallback string) string {
	got = strings.TrimSpace(strings.Split(got, ";")[0])
	if got == "" || got == "application/octet-stream" {
		return fallback
	}
	return got
}

type form struct {
	buf *bytes.Buffer
	w   *multipart.Writer
	err error
}

func newForm() *form {
	buf := &bytes.Buffer{}
	return &form{buf: buf, w: multipart.NewWriter(buf)}
}

func (f *form) field(name, value string) {
	if f.err != nil {
		return
	}
	f.err = f.w.WriteField(name, value)
}

func (f *form) file(name, filename string, data []byte) {
	if f.err != nil {
		return
	}
	part, err := f.w.CreateFormFile(name, filename)
	if err != nil {
		f.err = err
		return
	}
	_, f.err = part.Write(data)
}

func (f *form) close() (io.Reader, string, error) {
	if f.err != nil {
		return nil, "", fmt.Errorf("modelserver: encode form: %w", f.err)
	}
	if err := f.w.Close(); err != nil {
		return nil, "", fmt.Errorf("modelserver: encode form: %w", err)
	}
	return f.buf, f.w.FormDataContentType(), nil
}
