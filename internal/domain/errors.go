package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrConflict      = errors.New("conflict")
	ErrConfiguration = errors.New("configuration error")

	ErrTranscription      = errors.New("transcription error")
	ErrUpstreamGeneration = errors.New("upstream generation error")
	ErrSynthesis          = errors.New("synthesis error")
	ErrComposition        = errors.New("composition error")
)

// StageError reports which pipeline stage failed and why.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the failing stage recorded in err, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// SynthesisError carries the prompt a synthesizer was given alongside the
// provider error.
type SynthesisError struct {
	Kind   MediaKind
	Prompt string
	Err    error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize %s for prompt %q: %v", e.Kind, truncatePrompt(e.Prompt), e.Err)
}

func (e *SynthesisError) Unwrap() []error {
	return []error{ErrSynthesis, e.Err}
}

// NewSynthesisError wraps err unless it already is a synthesis error.
func NewSynthesisError(kind MediaKind, prompt string, err error) error {
	if err == nil {
		return nil
	}
	var se *SynthesisError
	if errors.As(err, &se) {
		return err
	}
	return &SynthesisError{Kind: kind, Prompt: prompt, Err: err}
}

// Transcription wraps err as a transcription failure.
func Transcription(err error) error {
	return kindError(ErrTranscription, err)
}

// UpstreamGeneration wraps err as a text-model failure.
func UpstreamGeneration(err error) error {
	return kindError(ErrUpstreamGeneration, err)
}

// Composition wraps err as a compositor failure.
func Composition(err error) error {
	return kindError(ErrComposition, err)
}

func kindError(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// IsTimeout reports whether err came from an expired deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func truncatePrompt(p string) string {
	const max = 120
	r := []rune(p)
	if len(r) <= max {
		return p
	}
	return string(r[:max]) + "..."
}
