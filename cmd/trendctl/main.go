// Command trendctl analyses a reference video that performed well and appends
// the findings to the trend notes file the planner reads through
// TREND_SOURCE.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"reelgen/internal/infra"
	"reelgen/internal/providers/genai"
	"reelgen/internal/trends"
)

type options struct {
	videoPath    string
	metadataPath string
	dailyPath    string
	historyPath  string
	timeout      time.Duration
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.videoPath, "video", "", "reference video to analyse")
	flag.StringVar(&opts.metadataPath, "metadata", "", "JSON file with scraped metadata (likes, comments, caption, hashtags)")
	flag.StringVar(&opts.dailyPath, "out", dailyPath(os.Getenv("TREND_SOURCE")), "text file the analysis is appended to")
	flag.StringVar(&opts.historyPath, "history", filepath.Join("analysis", "analysis_data.json"), "JSON history file, empty to skip")
	flag.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "overall deadline for upload and analysis")
	flag.Parse()

	logger := infra.NewLogger(os.Getenv("APP_ENV"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &logger, opts); err != nil {
		logger.Error().Err(err).Msg("trendctl: analysis failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *infra.Logger, opts options) error {
	if opts.videoPath == "" {
		return errors.New("-video is required")
	}
	video, err := os.ReadFile(opts.videoPath)
	if err != nil {
		return fmt.Errorf("read video: %w", err)
	}
	metadata, err := loadMetadata(opts.metadataPath)
	if err != nil {
		return err
	}

	client, err := genai.NewClient(ctx, genai.Options{
		APIKey:     os.Getenv("GENAI_API_KEY"),
		TextModel:  os.Getenv("GENAI_MODEL"),
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	analyzer := trends.NewAnalyzer(client)
	analysis, err := analyzer.Analyze(ctx, video, videoType(video), metadata)
	if err != nil {
		return err
	}
	if err := analyzer.AppendDaily(opts.dailyPath, analysis); err != nil {
		return err
	}
	if opts.historyPath != "" {
		if err := analyzer.AppendHistory(opts.historyPath, analysis); err != nil {
			return err
		}
	}
	logger.Info().Str("daily", opts.dailyPath).Str("history", opts.historyPath).Msg("trendctl: analysis saved")
	return nil
}

// loadMetadata reads the scraped metadata object. An empty path yields an
// empty object.
func loadMetadata(path string) (map[string]any, error) {
	metadata := map[string]any{}
	if strings.TrimSpace(path) == "" {
		return metadata, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return metadata, nil
}

// dailyPath defaults -out to the TREND_SOURCE file so the planner picks the
// notes up without extra configuration.
func dailyPath(trendSource string) string {
	src := strings.TrimSpace(trendSource)
	if src == "" || strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return filepath.Join("analysis", "daily_analysis.txt")
	}
	return strings.TrimPrefix(src, "file://")
}

// videoType sniffs the clip, falling back to mp4 for containers the sniffer
// does not know.
func videoType(data []byte) string {
	if ct := http.DetectContentType(data); strings.HasPrefix(ct, "video/") {
		return ct
	}
	return "video/mp4"
}
