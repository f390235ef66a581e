// Command reelctl runs one reel pipeline from the command line and writes the
// video, plan and caption into an output directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"reelgen/internal/app"
	"reelgen/internal/domain"
	"reelgen/internal/infra"
	"reelgen/internal/pipeline"
	"reelgen/internal/storage"
	"reelgen/pkg/zip"
)

type options struct {
	text       string
	audioPath  string
	sampleRate int
	reference  string
	outDir     string
	locale     string
	region     string
	bundle     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.text, "text", "", "product description")
	flag.StringVar(&opts.audioPath, "audio", "", "audio file to transcribe instead of -text")
	flag.IntVar(&opts.sampleRate, "sample-rate", 0, "sample rate of -audio in Hz (0 = from file)")
	flag.StringVar(&opts.reference, "reference", "", "optional reference image for the still")
	flag.StringVar(&opts.outDir, "out", "./out", "output directory")
	flag.StringVar(&opts.locale, "locale", "en", "language of the script and caption")
	flag.StringVar(&opts.region, "region", "", "ISO country code of the audience")
	flag.BoolVar(&opts.bundle, "zip", false, "also write a zip bundle next to the files")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "reelctl: %v\n", err)
		os.Exit(2)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, &logger, opts); err != nil {
		logger.Error().Err(err).Msg("reelctl: run failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *infra.Config, logger *infra.Logger, opts options) error {
	in, err := buildInput(opts)
	if err != nil {
		return err
	}
	store, err := storage.NewFileStore(opts.outDir)
	if err != nil {
		return err
	}

	services, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer services.Close()

	runID := uuid.NewString()
	done := make(chan struct{})
	go func() {
		defer close(done)
		followProgress(services.Events, runID, logger)
	}()

	res, err := services.Coordinator.Run(ctx, runID, in)
	<-done
	if err != nil {
		return err
	}

	keys, err := store.SaveRun(ctx, res)
	if err != nil {
		return err
	}
	if opts.bundle {
		key, err := writeBundle(ctx, store, res)
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}
	for _, key := range keys {
		fmt.Println(filepath.Join(store.BasePath(), filepath.FromSlash(key)))
	}
	if res.Plan.CaptionOverLimit() {
		logger.Warn().Int("limit", domain.CaptionLimit).Msg("reelctl: caption exceeds recommended length")
	}
	return nil
}

func buildInput(opts options) (domain.RunInput, error) {
	in := domain.RunInput{
		Text:       strings.TrimSpace(opts.text),
		SampleRate: opts.sampleRate,
		Locale:     opts.locale,
		Region:     strings.ToUpper(strings.TrimSpace(opts.region)),
	}
	switch {
	case in.Text != "" && opts.audioPath != "":
		return in, errors.New("use either -text or -audio, not both")
	case in.Text == "" && opts.audioPath == "":
		return in, errors.New("one of -text or -audio is required")
	case opts.audioPath != "":
		audio, err := os.ReadFile(opts.audioPath)
		if err != nil {
			return in, fmt.Errorf("read audio: %w", err)
		}
		in.Audio = audio
	}
	if opts.reference != "" {
		ref, err := os.ReadFile(opts.reference)
		if err != nil {
			return in, fmt.Errorf("read reference image: %w", err)
		}
		in.ReferenceImage = ref
	}
	return in, nil
}

// followProgress logs stage events until the run finishes.
func followProgress(events *pipeline.Broker, runID string, logger *infra.Logger) {
	backlog, updates, cancel := events.Subscribe(runID)
	defer cancel()
	for _, e := range backlog {
		logEvent(logger, e)
	}
	for e := range updates {
		logEvent(logger, e)
	}
}

func logEvent(logger *infra.Logger, e pipeline.Event) {
	ev := logger.Info()
	if e.Status == pipeline.EventFailed {
		ev = logger.Warn().Str("error", e.Error)
	}
	ev.Str("stage", string(e.Stage)).Str("status", e.Status).Msg("reelctl: progress")
}

func writeBundle(ctx context.Context, store *storage.FileStore, res *domain.RunResult) (string, error) {
	planKey := filepath.Join(store.BasePath(), res.RunID, "plan.json")
	planJSON, err := os.ReadFile(planKey)
	if err != nil {
		return "", err
	}
	archive, err := zip.Archive([]zip.Asset{
		{Filename: "reel" + res.Video.Extension(), Data: res.Video.Bytes()},
		{Filename: "plan.json", Data: planJSON},
		{Filename: "caption.txt", Data: []byte(res.Plan.Caption + "\n")},
	}, time.Now())
	if err != nil {
		return "", err
	}
	return store.Write(ctx, res.RunID+".zip", archive)
}
