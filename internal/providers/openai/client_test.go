package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"reelgen/internal/domain"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestClient(t *testing.T, fn roundTripFunc) *Client {
	t.Helper()
	c, err := NewClient(Options{
		APIKey:     "test-key",
		BaseURL:    "https://api.test/v1",
		HTTPClient: &http.Client{Transport: fn},
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Options{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestCompleteRequestsJSONObject(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		format, _ := body["response_format"].(map[string]any)
		if format["type"] != "json_object" {
			t.Errorf("response_format = %v", body["response_format"])
		}
		msgs, _ := body["messages"].([]any)
		if len(msgs) != 2 {
			t.Errorf("messages = %d, want 2", len(msgs))
		}
		return jsonResponse(http.StatusOK, `{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"ok\":true}"}}]}`), nil
	})

	got, err := c.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != `{"ok":true}` {
		t.Fatalf("content = %q", got)
	}
}

func TestSpeechPassesInstructions(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["instructions"] != "warm and upbeat" || body["response_format"] != "wav" {
			t.Errorf("unexpected body: %v", body)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"audio/wav"}},
			Body:       io.NopCloser(bytes.NewReader([]byte("RIFF"))),
		}, nil
	})

	data, err := c.Speech(context.Background(), "Meet the headphones.", "warm and upbeat")
	if err != nil {
		t.Fatalf("Speech returned error: %v", err)
	}
	if string(data) != "RIFF" {
		t.Fatalf("data = %q", data)
	}
}

func TestAPIErrorsBecomeStatusErrors(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit"}}`), nil
	})

	_, err := c.Complete(context.Background(), "", "hi")
	var se *domain.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *domain.StatusError", err)
	}
	if se.StatusCode != http.StatusTooManyRequests || !domain.IsTransient(err) {
		t.Fatalf("unexpected status error: %+v", se)
	}
}
