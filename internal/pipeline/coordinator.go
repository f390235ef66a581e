// Package pipeline sequences the stages of one reel run: optional
// transcription, planning, the concurrent image-to-video and speech
// branches, then compositing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"reelgen/internal/domain"
	"reelgen/internal/infra"
	"reelgen/internal/planner"
	"reelgen/internal/providers/image"
	"reelgen/internal/providers/speech"
	"reelgen/internal/providers/transcribe"
	"reelgen/internal/providers/video"
)

// Planner produces the content plan for a request.
type Planner interface {
	Plan(ctx context.Context, req planner.Request) (domain.ContentPlan, error)
}

// Compositor muxes narration onto a clip.
type Compositor interface {
	Mux(ctx context.Context, video, audio *domain.MediaArtifact) (*domain.MediaArtifact, error)
}

// Options wires a Coordinator. Transcriber, Events, Metrics and Ledger are
// optional.
type Options struct {
	Transcriber transcribe.Transcriber
	Planner     Planner
	Images      image.Synthesizer
	Videos      video.Synthesizer
	Voices      speech.Synthesizer
	Compositor  Compositor
	Timeouts    infra.StageTimeouts
	Retry       RetryPolicy
	Events      *Broker
	Metrics     *Metrics
	Ledger      domain.RunRepository
	Logger      *infra.Logger
}

// Coordinator runs pipelines and is safe for concurrent use. The only state
// it keeps across calls is the set of run IDs currently in flight.
type Coordinator struct {
	transcriber transcribe.Transcriber
	planner     Planner
	images      image.Synthesizer
	videos      video.Synthesizer
	voices      speech.Synthesizer
	compositor  Compositor
	timeouts    infra.StageTimeouts
	retry       RetryPolicy
	events      *Broker
	metrics     *Metrics
	ledger      domain.RunRepository
	logger      *infra.Logger
	now         func() time.Time

	mu     sync.Mutex
	active map[string]struct{}
}

// New validates the wiring and returns a Coordinator.
func New(opts Options) (*Coordinator, error) {
	var missing []string
	if opts.Planner == nil {
		missing = append(missing, "planner")
	}
	if opts.Images == nil {
		missing = append(missing, "image synthesizer")
	}
	if opts.Videos == nil {
		missing = append(missing, "video synthesizer")
	}
	if opts.Voices == nil {
		missing = append(missing, "voice synthesizer")
	}
	if opts.Compositor == nil {
		missing = append(missing, "compositor")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: pipeline missing %s", domain.ErrConfiguration, strings.Join(missing, ", "))
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Coordinator{
		transcriber: opts.Transcriber,
		planner:     opts.Planner,
		images:      opts.Images,
		videos:      opts.Videos,
		voices:      opts.Voices,
		compositor:  opts.Compositor,
		timeouts:    opts.Timeouts,
		retry:       opts.Retry,
		events:      opts.Events,
		metrics:     opts.Metrics,
		ledger:      opts.Ledger,
		logger:      logger,
		now:         time.Now,
		active:      make(map[string]struct{}),
	}, nil
}

// run is the per-request state threaded through the stages.
type run struct {
	id     string
	input  domain.RunInput
	logger infra.Logger
}

// Run executes one pipeline. runID may be empty, in which case one is
// generated. A runID that is still in flight is rejected with
// domain.ErrConflict; a finished one may be reused and starts fresh. On
// failure the error is a *domain.StageError naming the stage that failed,
// and no partial artifacts are returned.
func (c *Coordinator) Run(ctx context.Context, runID string, in domain.RunInput) (*domain.RunResult, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		runID = uuid.NewString()
	}
	if !c.claim(runID) {
		return nil, &domain.StageError{Stage: domain.StageReceived, Err: fmt.Errorf("%w: run %s is still in progress", domain.ErrConflict, runID)}
	}
	defer c.release(runID)
	r := &run{id: runID, input: in, logger: c.logger.With().Str("run_id", runID).Logger()}

	c.events.Begin(runID)
	c.metrics.runStarted()
	c.recordStart(ctx, r)
	c.emit(r, domain.StageReceived, EventStarted, nil)

	result, err := c.execute(ctx, r)

	c.finish(ctx, r, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Coordinator) claim(runID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.active[runID]; busy {
		return false
	}
	c.active[runID] = struct{}{}
	return true
}

func (c *Coordinator) release(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, runID)
}

func (c *Coordinator) execute(ctx context.Context, r *run) (*domain.RunResult, error) {
	in := r.input
	text := strings.TrimSpace(in.Text)
	if text == "" && len(in.Audio) == 0 {
		if in.Audio != nil {
			return nil, &domain.StageError{Stage: domain.StageTranscribing, Err: domain.Transcription(errors.New("audio is empty"))}
		}
		return nil, &domain.StageError{Stage: domain.StageReceived, Err: fmt.Errorf("%w: text or audio is required", domain.ErrInvalidInput)}
	}
	result := &domain.RunResult{RunID: r.id}

	if in.HasAudio() {
		transcript, err := c.transcribe(ctx, r)
		if err != nil {
			return nil, err
		}
		result.Transcript = transcript
		text = transcript
	}

	plan, err := c.plan(ctx, r, text)
	if err != nil {
		return nil, err
	}
	result.Plan = plan

	clip, narration, err := c.synthesize(ctx, r, plan)
	if err != nil {
		return nil, err
	}

	final, err := c.compose(ctx, r, clip, narration)
	if err != nil {
		return nil, err
	}
	result.Video = final
	return result, nil
}

func (c *Coordinator) transcribe(ctx context.Context, r *run) (string, error) {
	stage := domain.StageTranscribing
	if c.transcriber == nil {
		return "", &domain.StageError{Stage: stage, Err: fmt.Errorf("%w: no transcriber configured", domain.ErrConfiguration)}
	}
	var transcript string
	err := c.stage(ctx, r, stage, c.timeouts.Transcribe, c.retry, func(ctx context.Context) error {
		var err error
		transcript, err = c.transcriber.Transcribe(ctx, transcribe.Request{Audio: r.input.Audio, SampleRate: r.input.SampleRate})
		return err
	})
	return transcript, err
}

// plan is never retried: a malformed reply would most likely repeat.
func (c *Coordinator) plan(ctx context.Context, r *run, text string) (domain.ContentPlan, error) {
	var plan domain.ContentPlan
	err := c.stage(ctx, r, domain.StagePlanning, c.timeouts.Plan, NoRetry, func(ctx context.Context) error {
		var err error
		plan, err = c.planner.Plan(ctx, planner.Request{Text: text, Locale: r.input.Locale, Region: r.input.Region})
		return err
	})
	if err == nil && plan.CaptionOverLimit() {
		r.logger.Warn().Int("caption_runes", len([]rune(plan.Caption))).Msg("pipeline: caption exceeds recommended length")
	}
	return plan, err
}

// synthesize runs the image-to-video branch and the speech branch
// concurrently. The first failure cancels the other branch.
func (c *Coordinator) synthesize(ctx context.Context, r *run, plan domain.ContentPlan) (clip, narration *domain.MediaArtifact, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var still *domain.MediaArtifact
		err := c.stage(gctx, r, domain.StageSynthesizingImage, c.timeouts.Image, c.retry, func(ctx context.Context) error {
			var err error
			still, err = c.images.Synthesize(ctx, image.Request{Prompt: plan.ImagePrompt, Reference: r.input.ReferenceImage, RunID: r.id})
			return err
		})
		if err != nil {
			return err
		}
		return c.stage(gctx, r, domain.StageSynthesizingVideo, c.timeouts.Video, c.retry, func(ctx context.Context) error {
			var err error
			clip, err = c.videos.Synthesize(ctx, video.Request{Prompt: plan.VideoPrompt, Start: still, RunID: r.id})
			return err
		})
	})

	g.Go(func() error {
		return c.stage(gctx, r, domain.StageSynthesizingAudio, c.timeouts.Speech, c.retry, func(ctx context.Context) error {
			var err error
			narration, err = c.voices.Synthesize(ctx, speech.Request{Script: plan.Script, Style: plan.AudioPrompt, RunID: r.id})
			return err
		})
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return clip, narration, nil
}

func (c *Coordinator) compose(ctx context.Context, r *run, clip, narration *domain.MediaArtifact) (*domain.MediaArtifact, error) {
	var final *domain.MediaArtifact
	err := c.stage(ctx, r, domain.StageCompositing, c.timeouts.Compose, NoRetry, func(ctx context.Context) error {
		var err error
		final, err = c.compositor.Mux(ctx, clip, narration)
		return err
	})
	return final, err
}

// stage runs fn as one named stage with events, logs, metrics and retries.
// Errors come back as *domain.StageError.
func (c *Coordinator) stage(ctx context.Context, r *run, stage domain.Stage, timeout time.Duration, policy RetryPolicy, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return &domain.StageError{Stage: stage, Err: err}
	}
	start := c.now()
	c.emit(r, stage, EventStarted, nil)
	c.recordStage(ctx, r, stage)

	err := policy.do(ctx, timeout, fn, func(attempt int, err error) {
		c.metrics.retried(stage)
		r.logger.Warn().Err(err).Str("stage", string(stage)).Int("attempt", attempt).Msg("pipeline: transient failure, retrying")
	})
	c.metrics.observeStage(stage, start, err)
	if err != nil {
		// A branch cancelled because its sibling failed is not reported as
		// its own failure.
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return &domain.StageError{Stage: stage, Err: err}
		}
		c.emit(r, stage, EventFailed, err)
		return &domain.StageError{Stage: stage, Err: err}
	}
	r.logger.Info().Str("stage", string(stage)).Dur("elapsed", c.now().Sub(start)).Msg("pipeline: stage finished")
	c.emit(r, stage, EventSucceeded, nil)
	return nil
}

func (c *Coordinator) emit(r *run, stage domain.Stage, status string, err error) {
	e := Event{RunID: r.id, Stage: stage, Status: status, At: c.now().UTC()}
	if err != nil {
		e.Error = err.Error()
	}
	if status == EventStarted {
		r.logger.Info().Str("stage", string(stage)).Msg("pipeline: stage started")
	}
	c.events.Publish(e)
}

func (c *Coordinator) finish(ctx context.Context, r *run, result *domain.RunResult, err error) {
	now := c.now().UTC()
	rec := domain.RunRecord{ID: r.id, Status: domain.RunStatusSucceeded, Stage: domain.StageDone, FinishedAt: &now}
	var failed domain.Stage
	if err != nil {
		failed, _ = domain.StageOf(err)
		if failed == "" {
			failed = domain.StageReceived
		}
		rec.Status = domain.RunStatusFailed
		rec.Stage = domain.StageFailed
		rec.FailedStage = failed
		rec.Error = err.Error()
		r.logger.Error().Err(err).Str("stage", string(failed)).Msg("pipeline: run failed")
		c.events.Publish(Event{RunID: r.id, Stage: domain.StageFailed, Status: EventFailed, Error: err.Error(), At: now})
	} else {
		rec.Caption = result.Plan.Caption
		r.logger.Info().Int("bytes", result.Video.Len()).Msg("pipeline: run finished")
		c.events.Publish(Event{RunID: r.id, Stage: domain.StageDone, Status: EventSucceeded, At: now})
	}
	c.events.Finish(r.id)
	c.metrics.runFinished(failed)

	if c.ledger != nil {
		if lerr := c.ledger.Finish(context.WithoutCancel(ctx), rec); lerr != nil {
			r.logger.Warn().Err(lerr).Msg("pipeline: ledger finish failed")
		}
	}
}

func (c *Coordinator) recordStart(ctx context.Context, r *run) {
	if c.ledger == nil {
		return
	}
	kind := "text"
	if r.input.HasAudio() {
		kind = "audio"
	}
	rec := domain.RunRecord{ID: r.id, Status: domain.RunStatusRunning, Stage: domain.StageReceived, InputKind: kind, StartedAt: c.now().UTC()}
	if err := c.ledger.Start(ctx, rec); err != nil {
		r.logger.Warn().Err(err).Msg("pipeline: ledger start failed")
	}
}

func (c *Coordinator) recordStage(ctx context.Context, r *run, stage domain.Stage) {
	if c.ledger == nil {
		return
	}
	if err := c.ledger.UpdateStage(context.WithoutCancel(ctx), r.id, stage); err != nil {
		r.logger.Debug().Err(err).Msg("pipeline: ledger stage update failed")
	}
}
