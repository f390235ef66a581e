package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"reelgen/internal/http/handlers"
	"reelgen/internal/middleware"
)

// Options configures the cross-cutting middleware around the handlers.
type Options struct {
	Logger          zerolog.Logger
	CORSOrigins     []string
	RateLimitPerMin int
	JWTSecret       string
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	Gatherer        prometheus.Gatherer
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		// Generation endpoints hold model backends for a long time and
		// share one budget per client.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
			r.Post("/v1/reels", app.CreateReel)
			r.Post("/v1/transcriptions", app.Transcribe)
			r.Post("/v1/plans", app.CreatePlan)
			r.Post("/v1/images", app.CreateImage)
			r.Post("/v1/videos", app.CreateVideo)
			r.Post("/v1/speech", app.CreateSpeech)
			r.Post("/v1/compositions", app.CreateComposition)
		})

		r.Get("/v1/runs/{id}", app.GetRun)
		r.Get("/v1/runs/{id}/events", app.RunEvents)
	})

	return r
}
