package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("bad prompt"), want: false},
		{name: "429", err: &StatusError{Service: "tts", StatusCode: 429}, want: true},
		{name: "503 wrapped", err: fmt.Errorf("call: %w", &StatusError{Service: "veo", StatusCode: 503}), want: true},
		{name: "400", err: &StatusError{Service: "veo", StatusCode: 400}, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "synthesis wrapping 502", err: NewSynthesisError(MediaKindAudio, "hi", &StatusError{StatusCode: 502}), want: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
