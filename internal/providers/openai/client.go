package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"reelgen/internal/domain"
	"reelgen/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("openai: api key is required")

const (
	defaultChatModel       = "gpt-4o-mini"
	defaultSpeechModel     = "gpt-4o-mini-tts"
	defaultVoice           = "alloy"
	defaultTranscribeModel = goopenai.Whisper1
)

// Options controls how the OpenAI client is configured.
type Options struct {
	APIKey          string
	BaseURL         string
	Organization    string
	ChatModel       string
	SpeechModel     string
	Voice           string
	TranscribeModel string
	HTTPClient      *http.Client
	Logger          *infra.Logger
}

// Client exposes the three OpenAI calls the pipeline uses: JSON chat
// completion, speech synthesis and transcription.
type Client struct {
	sdk             *goopenai.Client
	chatModel       string
	speechModel     string
	voice           string
	transcribeModel string
	logger          *infra.Logger
}

// NewClient builds a client. Timeouts are governed by the caller's context.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	cfg := goopenai.DefaultConfig(apiKey)
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		cfg.BaseURL = base
	}
	cfg.OrgID = strings.TrimSpace(opts.Organization)
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	} else {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Minute}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		sdk:             goopenai.NewClientWithConfig(cfg),
		chatModel:       coalesce(opts.ChatModel, defaultChatModel),
		speechModel:     coalesce(opts.SpeechModel, defaultSpeechModel),
		voice:           coalesce(opts.Voice, defaultVoice),
		transcribeModel: coalesce(opts.TranscribeModel, defaultTranscribeModel),
		logger:          logger,
	}, nil
}

// Complete requests a JSON object reply to user under system.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	var messages []goopenai.ChatCompletionMessage
	if strings.TrimSpace(system) != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: user})

	resp, err := c.sdk.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:          c.chatModel,
		Messages:       messages,
		Temperature:    0.7,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", mapError("openai chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: response contained no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("openai: empty response content")
	}
	return content, nil
}

// Speech synthesizes script as WAV audio, with style passed as the voice
// instructions.
func (c *Client) Speech(ctx context.Context, script, style string) ([]byte, error) {
	resp, err := c.sdk.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(c.speechModel),
		Input:          script,
		Voice:          goopenai.SpeechVoice(c.voice),
		Instructions:   style,
		ResponseFormat: goopenai.SpeechResponseFormatWav,
	})
	if err != nil {
		return nil, mapError("openai speech", err)
	}
	defer resp.Close()
	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("openai: read speech: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("openai: empty speech payload")
	}
	return data, nil
}

// Transcribe sends audio to the transcription model. filename carries the
// container extension the API uses to detect the format.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	resp, err := c.sdk.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    c.transcribeModel,
		Reader:   audio,
		FilePath: coalesce(filename, "audio.wav"),
		Format:   goopenai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", mapError("openai transcription", err)
	}
	return resp.Text, nil
}

// mapError converts SDK errors carrying an HTTP status into
// domain.StatusError so retry decisions can be made upstream.
func mapError(service string, err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &domain.StatusError{Service: service, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		msg := ""
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &domain.StatusError{Service: service, StatusCode: reqErr.HTTPStatusCode, Message: msg}
	}
	return fmt.Errorf("%s: %w", service, err)
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
