// Package api wires the HTTP surface of the reference messaging server.
package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mentorlink/realtime/internal/api/middleware"
	"github.com/mentorlink/realtime/internal/config"
	"github.com/mentorlink/realtime/internal/handlers"
	"github.com/mentorlink/realtime/internal/hub"
	"github.com/mentorlink/realtime/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *config.Config, logger zerolog.Logger, data store.DataStore, sessions store.SessionCache, history store.HistoryStore, h *hub.Hub) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - credentialed, so origins must be explicit
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	handler := handlers.NewHandler(cfg, data, sessions, history, h)
	auth := middleware.NewAuthMiddleware(data, sessions)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/health", handler.Health)
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/login", handler.Login)
	r.Post("/auth/refresh", handler.Refresh)

	// Authenticated routes (require a live session cookie)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Get("/auth/me", handler.Me)
		r.Post("/auth/logout", handler.Logout)
		r.Get("/chats/{id}/messages", handler.GetChatMessages)
		r.Get("/ws", handler.ServeWS)
	})

	return r
}
