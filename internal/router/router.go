package router

import (
	"log/slog"
	"net/http"

	"shopbot-api/internal/handler"
	"shopbot-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	ItemHandler    *handler.ItemHandler
	UserHandler    *handler.UserHandler
	AdminHandler   *handler.AdminHandler
	AuthMiddleware func(http.Handler) http.Handler
	Logger         *slog.Logger
}

// PublicPaths are the /api/v1 paths served without an API key.
var PublicPaths = []string{"/api/v1/health", "/api/v1/ready"}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.NewRecovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.NewLogging(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	// AUTHENTICATED routes (use Group to apply auth middleware only to these)
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			// Health check endpoints
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			// Item catalog endpoints
			if cfg.ItemHandler != nil {
				r.Route("/items", func(r chi.Router) {
					r.Get("/search", cfg.ItemHandler.Search)
					r.Get("/{item_id}", cfg.ItemHandler.GetItem)
				})
			}

			// Per-account endpoints
			if cfg.UserHandler != nil {
				r.Route("/users/{identity_id}", func(r chi.Router) {
					r.Get("/shop", cfg.UserHandler.Shop)
					r.Get("/wallet", cfg.UserHandler.Wallet)
					r.Get("/match", cfg.UserHandler.Match)
				})
			}

			// Admin endpoints
			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Get("/stats", cfg.AdminHandler.GetStats)
					r.Post("/catalog/refresh", cfg.AdminHandler.RefreshCatalog)
					r.Post("/catalog/prices/refresh", cfg.AdminHandler.RefreshPrices)
				})
			}
		})
	})

	return r
}
