package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	livehandler "github.com/omnix-labs/omnix-voice/internal/handler/live"
	liveservice "github.com/omnix-labs/omnix-voice/internal/service/live"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(manager *liveservice.Manager, heartbeatInterval time.Duration, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	liveHandler := livehandler.New(manager, heartbeatInterval, logger)

	r.Route("/api", func(api chi.Router) {
		liveHandler.RegisterRoutes(api)
	})

	return r
}
