package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"batchedit/internal/http/handlers"
	"batchedit/internal/infra"
	"batchedit/internal/middleware"
)

func NewRouter(app *handlers.App, cfg *infra.Config, logger zerolog.Logger) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
		middleware.CORS(cfg.AllowedOrigins),
		middleware.RateLimit(cfg.RateLimitPerMin, time.Minute),
		middleware.I18N(cfg.DefaultLocale),
	)

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/batch", func(r chi.Router) {
		r.Post("/", app.SelectFiles)
		r.Get("/", app.Batch)
		r.Delete("/", app.Clear)
		r.Post("/run", app.StartRun)
		r.Post("/stop", app.Stop)
		r.Get("/download", app.Download)

		r.Route("/items/{id}", func(r chi.Router) {
			r.Post("/redo", app.Redo)
			r.Get("/preview", app.Preview)
			r.Get("/result", app.Result)
		})
	})

	return r
}
