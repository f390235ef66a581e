package domain

import (
	"strings"
	"time"
)

// Stage names one step of the pipeline state machine.
type Stage string

const (
	StageReceived          Stage = "RECEIVED"
	StageTranscribing      Stage = "TRANSCRIBING"
	StagePlanning          Stage = "PLANNING"
	StageSynthesizingImage Stage = "SYNTHESIZING_IMAGE"
	StageSynthesizingVideo Stage = "SYNTHESIZING_VIDEO"
	StageSynthesizingAudio Stage = "SYNTHESIZING_AUDIO"
	StageCompositing       Stage = "COMPOSITING"
	StageDone              Stage = "DONE"
	StageFailed            Stage = "FAILED"
)

// RunStatus enumerates ledger states for a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunInput is what a caller submits: either text or an audio clip.
type RunInput struct {
	Text           string
	Audio          []byte
	SampleRate     int
	ReferenceImage []byte
	Locale         string
	Region         string
}

// HasAudio reports whether the input must be transcribed first. Blank text
// counts as no text.
func (in RunInput) HasAudio() bool {
	return strings.TrimSpace(in.Text) == "" && in.Audio != nil
}

// RunResult is the successful outcome of a pipeline run.
type RunResult struct {
	RunID      string
	Transcript string
	Plan       ContentPlan
	Video      *MediaArtifact
}

// RunRecord is the persisted metadata of a run. Artifacts are never stored.
type RunRecord struct {
	ID          string
	Status      RunStatus
	Stage       Stage
	InputKind   string
	Caption     string
	FailedStage Stage
	Error       string
	StartedAt   time.Time
	FinishedAt  *time.Time
}
