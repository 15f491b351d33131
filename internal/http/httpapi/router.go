package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/middleware"
)

// NewRouter wires every route. The webhook endpoint authenticates with the
// body signature instead of a bearer token and is exempt from the per-IP
// rate limit, so it lives outside the authenticated group.
func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
	)
	if len(app.Config.CORSAllowedOrigins) > 0 {
		r.Use(middleware.CORS(app.Config.CORSAllowedOrigins))
	}

	r.Get("/v1/healthz", app.Health)
	r.Post("/v1/webhooks/generation", app.GenerationWebhook)

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.AuthJWT(app.Config.JWTSecret),
			middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute),
		)

		r.Route("/v1/generations", func(r chi.Router) {
			r.Post("/", app.GenerationsCreate)
			r.Get("/{id}", app.GenerationsGet)
			r.Patch("/{id}", app.GenerationsPatch)
			r.Post("/{id}/retry", app.GenerationsRetry)
		})

		r.Get("/v1/renders", app.RendersList)
		r.Get("/v1/usage", app.Usage)
	})

	// Development only: serve filesystem-store objects directly.
	if app.Config.StorageBackend == "filesystem" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(app.Config.StoragePath)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}
