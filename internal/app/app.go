// Package app assembles the pipeline and its providers from configuration.
// Both the HTTP server and the CLI start from Build.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"reelgen/internal/adapter/repo"
	"reelgen/internal/compositor"
	"reelgen/internal/domain"
	"reelgen/internal/domain/jsoncfg"
	"reelgen/internal/infra"
	"reelgen/internal/pipeline"
	"reelgen/internal/planner"
	"reelgen/internal/providers/genai"
	"reelgen/internal/providers/image"
	"reelgen/internal/providers/modelserver"
	"reelgen/internal/providers/openai"
	"reelgen/internal/providers/qwen"
	"reelgen/internal/providers/speech"
	"reelgen/internal/providers/transcribe"
	"reelgen/internal/providers/video"
	"reelgen/internal/trends"
)

const (
	eventHistory  = 512
	retryMaxDelay = 30 * time.Second
	trendsTimeout = 20 * time.Second
	sqlitePrefix  = "sqlite://"
)

// Services is the assembled object graph.
type Services struct {
	Coordinator *pipeline.Coordinator
	Transcriber transcribe.Transcriber
	Planner     *planner.Planner
	Images      image.Synthesizer
	Videos      video.Synthesizer
	Voices      speech.Synthesizer
	Compositor  *compositor.FFmpeg
	Events      *pipeline.Broker
	Ledger      domain.RunRepository
	Registry    *prometheus.Registry

	closers []func()
}

// Close releases database handles.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// clients lazily builds each provider SDK client at most once.
type clients struct {
	ctx    context.Context
	cfg    *infra.Config
	logger *infra.Logger

	gemini *genai.Client
	oai    *openai.Client
	models *modelserver.Client
}

func (c *clients) genai() (*genai.Client, error) {
	if c.gemini != nil {
		return c.gemini, nil
	}
	client, err := genai.NewClient(c.ctx, genai.Options{
		APIKey:      c.cfg.GenAIAPIKey,
		TextModel:   c.cfg.GenAIModel,
		VideoModel:  c.cfg.VeoModel,
		AspectRatio: aspectRatio(c.cfg.VideoFrameWidth, c.cfg.VideoFrameHeight),
		Logger:      c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: genai: %v", domain.ErrConfiguration, err)
	}
	c.gemini = client
	return client, nil
}

func (c *clients) openai() (*openai.Client, error) {
	if c.oai != nil {
		return c.oai, nil
	}
	client, err := openai.NewClient(openai.Options{
		APIKey:          c.cfg.OpenAIAPIKey,
		BaseURL:         c.cfg.OpenAIBaseURL,
		Organization:    c.cfg.OpenAIOrg,
		ChatModel:       c.cfg.OpenAIModel,
		SpeechModel:     c.cfg.TTSModel,
		Voice:           c.cfg.TTSVoice,
		TranscribeModel: c.cfg.TranscribeModel,
		Logger:          c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %v", domain.ErrConfiguration, err)
	}
	c.oai = client
	return client, nil
}

func (c *clients) modelserver() (*modelserver.Client, error) {
	if c.models != nil {
		return c.models, nil
	}
	client, err := modelserver.NewClient(modelserver.Options{BaseURL: c.cfg.ModelServerURL, Logger: c.logger})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	c.models = client
	return client, nil
}

// Build wires every component selected by cfg. Errors are configuration
// errors and should stop the process.
func Build(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*Services, error) {
	if logger == nil {
		logger = infra.NopLogger()
	}
	c := &clients{ctx: ctx, cfg: cfg, logger: logger}
	s := &Services{Events: pipeline.NewBroker(eventHistory)}

	var err error
	if s.Planner, err = buildPlanner(c); err != nil {
		return nil, err
	}
	if s.Transcriber, err = buildTranscriber(c); err != nil {
		return nil, err
	}
	if s.Images, err = buildImages(c); err != nil {
		return nil, err
	}
	if s.Videos, err = buildVideos(c); err != nil {
		return nil, err
	}
	if s.Voices, err = buildVoices(c); err != nil {
		return nil, err
	}
	s.Compositor = compositor.New(compositor.Options{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Logger:      logger,
	})

	ledger, closeLedger, err := openLedger(ctx, cfg.LedgerDSN, *logger)
	if err != nil {
		return nil, err
	}
	if closeLedger != nil {
		s.closers = append(s.closers, closeLedger)
	}
	s.Ledger = ledger

	s.Registry = prometheus.NewRegistry()
	s.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s.Coordinator, err = pipeline.New(pipeline.Options{
		Transcriber: s.Transcriber,
		Planner:     s.Planner,
		Images:      s.Images,
		Videos:      s.Videos,
		Voices:      s.Voices,
		Compositor:  s.Compositor,
		Timeouts:    cfg.StageTimeouts,
		Retry: pipeline.RetryPolicy{
			Attempts:  cfg.RetryAttempts,
			BaseDelay: cfg.RetryBaseDelay,
			MaxDelay:  retryMaxDelay,
		},
		Events:  s.Events,
		Metrics: pipeline.NewMetrics(s.Registry),
		Ledger:  s.Ledger,
		Logger:  logger,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func buildPlanner(c *clients) (*planner.Planner, error) {
	templates, err := jsoncfg.LoadPlannerTemplates(c.cfg.PromptTemplatesPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	source, err := trends.FromSetting(c.cfg.TrendSource, &http.Client{Timeout: trendsTimeout})
	if err != nil {
		return nil, fmt.Errorf("%w: TREND_SOURCE: %v", domain.ErrConfiguration, err)
	}

	var model planner.TextModel
	switch c.cfg.PlannerProvider {
	case infra.ProviderOpenAI:
		model, err = c.openai()
	default:
		model, err = c.genai()
	}
	if err != nil {
		return nil, err
	}
	return planner.New(planner.Options{Model: model, Templates: templates, Trends: source, Logger: c.logger})
}

func buildTranscriber(c *clients) (transcribe.Transcriber, error) {
	if c.cfg.TranscribeProvider == infra.ProviderModelServer {
		client, err := c.modelserver()
		if err != nil {
			return nil, err
		}
		return transcribe.NewModelServer(client), nil
	}
	client, err := c.openai()
	if err != nil {
		return nil, err
	}
	return transcribe.NewWhisper(client), nil
}

func buildImages(c *clients) (image.Synthesizer, error) {
	w, h := c.cfg.VideoFrameWidth, c.cfg.VideoFrameHeight
	if c.cfg.ImageProvider == infra.ProviderModelServer {
		client, err := c.modelserver()
		if err != nil {
			return nil, err
		}
		return image.WithFrame(image.NewModelServerSynthesizer(client), w, h), nil
	}
	client, err := qwen.NewClient(qwen.Options{
		APIKey:    c.cfg.QwenAPIKey,
		BaseURL:   c.cfg.QwenBaseURL,
		Model:     c.cfg.QwenModel,
		EditModel: c.cfg.QwenEditModel,
		Logger:    c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qwen: %v", domain.ErrConfiguration, err)
	}
	return image.WithFrame(image.NewQwenSynthesizer(client, w, h), w, h), nil
}

func buildVideos(c *clients) (video.Synthesizer, error) {
	if c.cfg.VideoProvider == infra.ProviderModelServer {
		client, err := c.modelserver()
		if err != nil {
			return nil, err
		}
		return video.NewModelServer(client, c.cfg.VideoSteps, c.cfg.VideoGuidance), nil
	}
	client, err := c.genai()
	if err != nil {
		return nil, err
	}
	return video.NewVeo(client), nil
}

func buildVoices(c *clients) (speech.Synthesizer, error) {
	if c.cfg.SpeechProvider == infra.ProviderModelServer {
		client, err := c.modelserver()
		if err != nil {
			return nil, err
		}
		return speech.NewModelServer(client), nil
	}
	client, err := c.openai()
	if err != nil {
		return nil, err
	}
	return speech.NewOpenAI(client), nil
}

// openLedger opens the run ledger named by dsn: a postgres URL, a sqlite
// file path, or nothing.
func openLedger(ctx context.Context, dsn string, logger infra.Logger) (domain.RunRepository, func(), error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, nil, nil
	case infra.IsPostgresDSN(dsn):
		pool, err := infra.NewDBPool(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: run ledger: %v", domain.ErrConfiguration, err)
		}
		ledger := repo.NewRunRepository(infra.NewSQLRunner(pool, logger))
		if err := ledger.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("%w: run ledger: %v", domain.ErrConfiguration, err)
		}
		return ledger, pool.Close, nil
	default:
		db, err := repo.OpenSQLite(strings.TrimPrefix(dsn, sqlitePrefix))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: run ledger: %v", domain.ErrConfiguration, err)
		}
		return repo.NewRunRepositorySQLite(db), func() { _ = db.Close() }, nil
	}
}

// aspectRatio maps the frame onto the ratios Veo accepts.
func aspectRatio(w, h int) string {
	if h > w {
		return "9:16"
	}
	return "16:9"
}
