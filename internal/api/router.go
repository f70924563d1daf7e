package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/assistantkb/internal/api/handlers"
	"github.com/nikhilbhutani/assistantkb/internal/api/middleware"
	"github.com/nikhilbhutani/assistantkb/internal/auth"
	"github.com/nikhilbhutani/assistantkb/internal/config"
)

type Router struct {
	mux     *chi.Mux
	cfg     config.ServerConfig
	jwt     *auth.JWTMiddleware
	limiter *middleware.RateLimiter
	health  *handlers.HealthHandler
	sources *handlers.SourceHandler
	search  *handlers.SearchHandler
}

func NewRouter(cfg *config.Config, health *handlers.HealthHandler, sources *handlers.SourceHandler, search *handlers.SearchHandler) *Router {
	return &Router{
		mux:     chi.NewRouter(),
		cfg:     cfg.Server,
		jwt:     auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		limiter: middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
		health:  health,
		sources: sources,
		search:  search,
	}
}

// Limiter is exposed so the caller can run its cleanup loop.
func (rt *Router) Limiter() *middleware.RateLimiter {
	return rt.limiter
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.AllowedOrigins))

	r.Get("/healthz", rt.health.Healthz)
	r.Get("/readyz", rt.health.Readyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)
		r.Use(rt.limiter.Limit)

		r.Route("/sources", func(r chi.Router) {
			r.With(auth.RequirePermission(auth.PermSourcesWrite)).Post("/", rt.sources.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.With(auth.RequirePermission(auth.PermSourcesRead)).Get("/", rt.sources.Get)
				r.With(auth.RequirePermission(auth.PermSourcesRead)).Get("/pages", rt.sources.Pages)
				r.With(auth.RequirePermission(auth.PermSourcesWrite)).Post("/crawl", rt.sources.Crawl)
				r.With(auth.RequirePermission(auth.PermSourcesWrite)).Post("/documents", rt.sources.Upload)
			})
		})

		r.With(auth.RequirePermission(auth.PermSearch)).Post("/search", rt.search.Search)
		r.With(auth.RequirePermission(auth.PermSearch)).Get("/chunks/{id}/related", rt.search.Related)
	})

	return r
}
