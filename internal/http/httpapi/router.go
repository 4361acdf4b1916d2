package httpapi

import (
	"net/http"
	"time"

	"schoolsite/internal/http/handlers"
	"schoolsite/internal/infra"
	appmw "schoolsite/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Options struct {
	Logger        *infra.Logger
	DefaultLocale string
	CountryLookup appmw.CountryLookup
	CORSOrigins   []string
	// RateLimitPerMin bounds POST /jobs and /assets/* per client IP; zero
	// disables the limit.
	RateLimitPerMin int
	// StaticDir is served under /static when set.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	logger := infra.LoggerOrDiscard(opts.Logger)
	r := chi.NewRouter()

	r.Use(
		appmw.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		appmw.Logger(*logger),
		appmw.CORS(opts.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	limited := appmw.RateLimit(opts.RateLimitPerMin, time.Minute)

	r.Route("/jobs", func(r chi.Router) {
		r.With(limited, appmw.I18N(opts.DefaultLocale, opts.CountryLookup)).Post("/", app.CreateJob)
		r.Get("/{jobId}", app.GetJob)
	})

	r.Route("/archive", func(r chi.Router) {
		r.Get("/", app.ListArchive)
		r.Get("/{id}", app.GetArchived)
		r.Delete("/{id}", app.DeleteArchived)
		r.Post("/{id}/star", app.StarArchived)
		r.Get("/{id}/export", app.ExportArchived)
	})

	r.Route("/assets", func(r chi.Router) {
		r.Use(limited)
		r.Post("/image", app.GenerateImageAsset)
		r.Post("/audio", app.GenerateAudioAsset)
	})

	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	return r
}
