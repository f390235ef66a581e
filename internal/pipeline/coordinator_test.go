package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"reelgen/internal/domain"
	"reelgen/internal/infra"
	"reelgen/internal/planner"
	"reelgen/internal/providers/image"
	"reelgen/internal/providers/speech"
	"reelgen/internal/providers/transcribe"
	"reelgen/internal/providers/video"
)

var testPlan = domain.ContentPlan{
	Script:      "Silence the city with forty hours of battery.",
	AudioPrompt: "warm confident narrator",
	VideoPrompt: "slow orbit around headphones",
	ImagePrompt: "studio shot of headphones",
	Caption:     "Forty hours of focus. #ANC",
}

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) index(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.calls {
		if c == name {
			return i
		}
	}
	return -1
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == name {
			n++
		}
	}
	return n
}

type fakes struct {
	rec *recorder

	planText   string
	imageReq   image.Request
	videoReq   video.Request
	speechReq  speech.Request
	muxInputs  [2]*domain.MediaArtifact
	imageErrs  []error
	videoBlock bool
	speechErr  error
}

func (f *fakes) Transcribe(_ context.Context, req transcribe.Request) (string, error) {
	f.rec.add("transcribe")
	return "new wireless headphones", nil
}

func (f *fakes) Plan(_ context.Context, req planner.Request) (domain.ContentPlan, error) {
	f.rec.add("plan")
	f.planText = req.Text
	return testPlan, nil
}

func (f *fakes) image() image.Synthesizer {
	return image.SynthesizerFunc(func(_ context.Context, req image.Request) (*domain.MediaArtifact, error) {
		n := f.rec.count("image")
		f.rec.add("image")
		f.imageReq = req
		if n < len(f.imageErrs) && f.imageErrs[n] != nil {
			return nil, f.imageErrs[n]
		}
		return domain.NewArtifact(domain.MediaKindImage, "image/png", []byte("png")), nil
	})
}

type videoFunc func(context.Context, video.Request) (*domain.MediaArtifact, error)

func (fn videoFunc) Synthesize(ctx context.Context, req video.Request) (*domain.MediaArtifact, error) {
	return fn(ctx, req)
}

func (f *fakes) video() video.Synthesizer {
	return videoFunc(func(ctx context.Context, req video.Request) (*domain.MediaArtifact, error) {
		f.rec.add("video")
		f.videoReq = req
		if f.videoBlock {
			<-ctx.Done()
			return nil, domain.NewSynthesisError(domain.MediaKindVideo, req.Prompt, ctx.Err())
		}
		return domain.NewArtifact(domain.MediaKindVideo, "video/mp4", []byte("clip")), nil
	})
}

type speechFunc func(context.Context, speech.Request) (*domain.MediaArtifact, error)

func (fn speechFunc) Synthesize(ctx context.Context, req speech.Request) (*domain.MediaArtifact, error) {
	return fn(ctx, req)
}

func (f *fakes) speech() speech.Synthesizer {
	return speechFunc(func(_ context.Context, req speech.Request) (*domain.MediaArtifact, error) {
		f.rec.add("speech")
		f.speechReq = req
		if f.speechErr != nil {
			return nil, f.speechErr
		}
		return domain.NewArtifact(domain.MediaKindAudio, "audio/wav", []byte("wav")), nil
	})
}

func (f *fakes) Mux(_ context.Context, v, a *domain.MediaArtifact) (*domain.MediaArtifact, error) {
	f.rec.add("mux")
	f.muxInputs = [2]*domain.MediaArtifact{v, a}
	return domain.NewArtifact(domain.MediaKindVideo, "video/mp4", []byte("reel")), nil
}

type memLedger struct {
	mu      sync.Mutex
	records map[string]domain.RunRecord
	stages  []domain.Stage
}

func newMemLedger() *memLedger {
	return &memLedger{records: map[string]domain.RunRecord{}}
}

func (m *memLedger) Start(_ context.Context, rec domain.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

func (m *memLedger) UpdateStage(_ context.Context, id string, stage domain.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, stage)
	rec := m.records[id]
	rec.Stage = stage
	m.records[id] = rec
	return nil
}

func (m *memLedger) Finish(_ context.Context, rec domain.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.records[rec.ID]
	rec.StartedAt = prev.StartedAt
	rec.InputKind = prev.InputKind
	m.records[rec.ID] = rec
	return nil
}

func (m *memLedger) GetByID(_ context.Context, id string) (*domain.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func newCoordinator(t *testing.T, f *fakes, mutate func(*Options)) *Coordinator {
	t.Helper()
	opts := Options{
		Transcriber: f,
		Planner:     f,
		Images:      f.image(),
		Videos:      f.video(),
		Voices:      f.speech(),
		Compositor:  f,
		Timeouts: infra.StageTimeouts{
			Transcribe: time.Second, Plan: time.Second, Image: time.Second,
			Video: time.Second, Speech: time.Second, Compose: time.Second,
		},
		Retry:   RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond},
		Events:  NewBroker(8),
		Metrics: NewMetrics(nil),
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return c
}

func TestRunTextInputHappyPath(t *testing.T) {
	f := &fakes{rec: &recorder{}}
	ledger := newMemLedger()
	c := newCoordinator(t, f, func(o *Options) { o.Ledger = ledger })

	res, err := c.Run(context.Background(), "run-1", domain.RunInput{Text: "New wireless headphones", ReferenceImage: []byte("ref")})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.RunID != "run-1" || string(res.Video.Bytes()) != "reel" || res.Plan != testPlan {
		t.Fatalf("unexpected result: %+v", res)
	}
	if f.rec.count("transcribe") != 0 {
		t.Fatal("text input must not be transcribed")
	}
	if f.planText != "New wireless headphones" {
		t.Fatalf("planner text = %q", f.planText)
	}
	if f.imageReq.Prompt != testPlan.ImagePrompt || string(f.imageReq.Reference) != "ref" {
		t.Fatalf("image request = %+v", f.imageReq)
	}
	if f.videoReq.Prompt != testPlan.VideoPrompt || string(f.videoReq.Start.Bytes()) != "png" {
		t.Fatalf("video request = %+v", f.videoReq)
	}
	if f.speechReq.Script != testPlan.Script || f.speechReq.Style != testPlan.AudioPrompt {
		t.Fatalf("speech request = %+v", f.speechReq)
	}
	if string(f.muxInputs[0].Bytes()) != "clip" || string(f.muxInputs[1].Bytes()) != "wav" {
		t.Fatal("compositor did not receive the branch outputs")
	}
	if f.rec.index("image") > f.rec.index("video") {
		t.Fatal("video synthesized before image")
	}
	if mux := f.rec.index("mux"); mux < f.rec.index("video") || mux < f.rec.index("speech") {
		t.Fatal("compositor ran before both branches finished")
	}

	rec, _ := ledger.GetByID(context.Background(), "run-1")
	if rec.Status != domain.RunStatusSucceeded || rec.Stage != domain.StageDone || rec.Caption != testPlan.Caption || rec.InputKind != "text" {
		t.Fatalf("ledger record = %+v", rec)
	}

	backlog, _, _ := c.events.Subscribe("run-1")
	last := backlog[len(backlog)-1]
	if last.Stage != domain.StageDone || last.Status != EventSucceeded {
		t.Fatalf("last event = %+v", last)
	}
}

func TestRunAudioInputTranscribesFirst(t *testing.T) {
	f := &fakes{rec: &recorder{}}
	c := newCoordinator(t, f, nil)

	res, err := c.Run(context.Background(), "", domain.RunInput{Audio: []byte("RIFF"), SampleRate: 16000})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.RunID == "" {
		t.Fatal("run id should be generated")
	}
	if res.Transcript != "new wireless headphones" || f.planText != res.Transcript {
		t.Fatalf("transcript not fed to planner: %+v", res)
	}
	if f.rec.index("transcribe") != 0 || f.rec.index("plan") != 1 {
		t.Fatalf("order = %v", f.rec.calls)
	}
}

func TestRunCorruptAudioNeverPlans(t *testing.T) {
	f := &fakes{rec: &recorder{}}
	c := newCoordinator(t, f, func(o *Options) {
		o.Transcriber = transcribe.NewWhisper(whisperFunc(func() (string, error) {
			t.Fatal("service must not be called")
			return "", nil
		}))
	})

	for name, audio := range map[string][]byte{"empty": {}, "corrupt": []byte("RIFF\x00\x00garbage")} {
		_, err := c.Run(context.Background(), "", domain.RunInput{Audio: audio})
		if !errors.Is(err, domain.ErrTranscription) {
			t.Fatalf("%s: err = %v, want ErrTranscription", name, err)
		}
		if stage, _ := domain.StageOf(err); stage != domain.StageTranscribing {
			t.Fatalf("%s: stage = %s, want TRANSCRIBING", name, stage)
		}
	}
	if f.rec.count("plan") != 0 {
		t.Fatal("planning must not be reached")
	}
}

type whisperFunc func() (string, error)

func (fn whisperFunc) Transcribe(context.Context, io.Reader, string) (string, error) {
	return fn()
}

func TestRunSpeechFailureSkipsCompositor(t *testing.T) {
	f := &fakes{rec: &recorder{}, videoBlock: true, speechErr: domain.NewSynthesisError(domain.MediaKindAudio, "s", errors.New("tts down"))}
	ledger := newMemLedger()
	c := newCoordinator(t, f, func(o *Options) {
		o.Ledger = ledger
		o.Timeouts.Video = 5 * time.Second
	})

	start := time.Now()
	_, err := c.Run(context.Background(), "run-2", domain.RunInput{Text: "headphones"})
	if !errors.Is(err, domain.ErrSynthesis) {
		t.Fatalf("err = %v, want ErrSynthesis", err)
	}
	if stage, _ := domain.StageOf(err); stage != domain.StageSynthesizingAudio {
		t.Fatalf("stage = %s, want SYNTHESIZING_AUDIO", stage)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("video branch was not cancelled")
	}
	if f.rec.count("mux") != 0 {
		t.Fatal("compositor must not run after a branch failure")
	}
	if f.rec.count("speech") != 1 {
		t.Fatalf("non-transient failure retried: %d calls", f.rec.count("speech"))
	}
	rec, _ := ledger.GetByID(context.Background(), "run-2")
	if rec.Status != domain.RunStatusFailed || rec.FailedStage != domain.StageSynthesizingAudio {
		t.Fatalf("ledger record = %+v", rec)
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	busy := &domain.StatusError{Service: "qwen", StatusCode: 503}
	f := &fakes{rec: &recorder{}, imageErrs: []error{
		domain.NewSynthesisError(domain.MediaKindImage, "p", busy),
		domain.NewSynthesisError(domain.MediaKindImage, "p", busy),
	}}
	c := newCoordinator(t, f, nil)

	if _, err := c.Run(context.Background(), "", domain.RunInput{Text: "headphones"}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if f.rec.count("image") != 3 {
		t.Fatalf("image calls = %d, want 3", f.rec.count("image"))
	}
}

func TestRunGivesUpAfterRetryBudget(t *testing.T) {
	busy := domain.NewSynthesisError(domain.MediaKindImage, "p", &domain.StatusError{Service: "qwen", StatusCode: 429})
	f := &fakes{rec: &recorder{}, imageErrs: []error{busy, busy, busy, busy}}
	c := newCoordinator(t, f, nil)

	_, err := c.Run(context.Background(), "", domain.RunInput{Text: "headphones"})
	if stage, _ := domain.StageOf(err); stage != domain.StageSynthesizingImage {
		t.Fatalf("err = %v, want image stage failure", err)
	}
	if f.rec.count("image") != 3 || f.rec.count("video") != 0 {
		t.Fatalf("calls = %v", f.rec.calls)
	}
}

func TestRunStageTimeout(t *testing.T) {
	f := &fakes{rec: &recorder{}, videoBlock: true}
	c := newCoordinator(t, f, func(o *Options) {
		o.Timeouts.Video = 20 * time.Millisecond
		o.Retry = NoRetry
	})

	_, err := c.Run(context.Background(), "", domain.RunInput{Text: "headphones"})
	if !domain.IsTimeout(err) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if stage, _ := domain.StageOf(err); stage != domain.StageSynthesizingVideo {
		t.Fatalf("stage = %s", stage)
	}
}

func TestRunRejectsEmptyInput(t *testing.T) {
	f := &fakes{rec: &recorder{}}
	c := newCoordinator(t, f, nil)
	_, err := c.Run(context.Background(), "", domain.RunInput{Text: "  "})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if stage, _ := domain.StageOf(err); stage != domain.StageReceived {
		t.Fatalf("stage = %s", stage)
	}
}

func TestNewValidatesWiring(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

type planFunc func(context.Context, planner.Request) (domain.ContentPlan, error)

func (fn planFunc) Plan(ctx context.Context, req planner.Request) (domain.ContentPlan, error) {
	return fn(ctx, req)
}

func TestRunReusedIDStartsFresh(t *testing.T) {
	f := &fakes{rec: &recorder{}, speechErr: domain.NewSynthesisError(domain.MediaKindAudio, "s", errors.New("tts down"))}
	ledger := newMemLedger()
	c := newCoordinator(t, f, func(o *Options) { o.Ledger = ledger })

	if _, err := c.Run(context.Background(), "same-id", domain.RunInput{Text: "headphones"}); err == nil {
		t.Fatal("first run should fail")
	}
	f.speechErr = nil
	if _, err := c.Run(context.Background(), "same-id", domain.RunInput{Text: "headphones"}); err != nil {
		t.Fatalf("second run: %v", err)
	}

	backlog, updates, _ := c.events.Subscribe("same-id")
	if _, ok := <-updates; ok {
		t.Fatal("finished run should yield a closed channel")
	}
	for _, e := range backlog {
		if e.Status == EventFailed {
			t.Fatalf("history of the earlier run leaked: %+v", backlog)
		}
	}
	if last := backlog[len(backlog)-1]; last.Stage != domain.StageDone {
		t.Fatalf("last event = %+v", last)
	}
	rec, _ := ledger.GetByID(context.Background(), "same-id")
	if rec.Status != domain.RunStatusSucceeded || rec.FailedStage != "" {
		t.Fatalf("ledger record = %+v", rec)
	}
}

func TestRunRejectsIDInFlight(t *testing.T) {
	f := &fakes{rec: &recorder{}}
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	c := newCoordinator(t, f, func(o *Options) {
		o.Planner = planFunc(func(ctx context.Context, req planner.Request) (domain.ContentPlan, error) {
			once.Do(func() { close(entered) })
			<-release
			return testPlan, nil
		})
	})

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background(), "busy", domain.RunInput{Text: "headphones"})
		done <- err
	}()
	<-entered

	_, err := c.Run(context.Background(), "busy", domain.RunInput{Text: "headphones"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := c.Run(context.Background(), "busy", domain.RunInput{Text: "headphones"}); err != nil {
		t.Fatalf("id should be free after the run finished: %v", err)
	}
}

func TestRunBlankTextWithAudioIsAudioInput(t *testing.T) {
	f := &fakes{rec: &recorder{}}
	ledger := newMemLedger()
	c := newCoordinator(t, f, func(o *Options) { o.Ledger = ledger })

	res, err := c.Run(context.Background(), "run-blank", domain.RunInput{Text: "   ", Audio: []byte("RIFF")})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Transcript == "" || f.rec.index("transcribe") != 0 {
		t.Fatalf("audio should be transcribed: %v", f.rec.calls)
	}
	rec, _ := ledger.GetByID(context.Background(), "run-blank")
	if rec.InputKind != "audio" {
		t.Fatalf("input kind = %q", rec.InputKind)
	}
}
