package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"videoscribe/internal/handlers"
	"videoscribe/internal/middleware"
	"videoscribe/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	jobHandler *handlers.JobHandler,
	wsHub *websocket.Hub,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Job submission rate limiter (10 req/min per subject)
	jobLimiter := middleware.NewRateLimiter(10, time.Minute)

	r.Get("/health", handlers.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.With(jobLimiter.Middleware).Post("/", jobHandler.Create)
			r.Get("/{id}", jobHandler.Get)
		})

		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
