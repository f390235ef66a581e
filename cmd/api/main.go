package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"reelgen/internal/app"
	"reelgen/internal/http/handlers"
	"reelgen/internal/http/httpapi"
	"reelgen/internal/infra"
	"reelgen/internal/infra/geoip"
	"reelgen/internal/middleware"
)

const shutdownGrace = 30 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		boot := infra.NewLogger("production")
		boot.Fatal().Err(err).Msg("api: invalid configuration")
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.Build(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to assemble pipeline")
	}
	defer services.Close()

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip disabled")
	}
	defer resolver.Close()

	handlerApp := &handlers.App{
		Pipeline:       services.Coordinator,
		Transcriber:    services.Transcriber,
		Planner:        services.Planner,
		Images:         services.Images,
		Videos:         services.Videos,
		Voices:         services.Voices,
		Compositor:     services.Compositor,
		Events:         services.Events,
		Ledger:         services.Ledger,
		Timeouts:       cfg.StageTimeouts,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         &logger,
	}
	router := httpapi.NewRouter(handlerApp, httpapi.Options{
		Logger:          logger,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		JWTSecret:       cfg.JWTSecret,
		DefaultLocale:   "en",
		CountryLookup:   middleware.CountryLookup(resolver.Lookup()),
		Gatherer:        services.Registry,
	})

	server := infra.NewHTTPServer(cfg, router)
	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("planner", cfg.PlannerProvider).
			Str("image", cfg.ImageProvider).
			Str("video", cfg.VideoProvider).
			Str("speech", cfg.SpeechProvider).
			Str("transcribe", cfg.TranscribeProvider).
			Bool("ledger", services.Ledger != nil).
			Msg("api: listening")
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("api: http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	logger.Info().Msg("api: stopped")
}
