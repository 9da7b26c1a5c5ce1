package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/buzzer/internal/handler/health"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Buzzer API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, deps.Checks).Routes())
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// Presenter routes.
	r.Get("/api/session", handleSessionState(deps.Store))
	r.Post("/api/session", handleSessionAction(deps.Store))
	r.Get("/api/session/qr.png", handleJoinQR(deps.Store, deps.PublicURL))
	r.Get("/api/rounds", handleListRounds(logger, deps.Rounds))

	// Participant routes. Buzz is never limited: duplicates are already
	// rejected by the store and a 429 would cost a player their place.
	r.Group(func(r chi.Router) {
		r.Use(limitPerIP(deps.JoinLimit, deps.JoinWindow))
		r.Post("/api/join", handleJoin(deps.Store))
		r.Post("/api/leave", handleLeave(deps.Store))
	})
	r.Post("/api/buzz", handleBuzz(deps.Store))

	// Live viewers.
	r.Get("/api/events", handleEvents(deps.Hub))
	r.Get("/ws/events", handleWSEvents(logger, deps.Hub))

	if deps.SPADir != "" {
		if info, err := os.Stat(deps.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", deps.SPADir)
			r.NotFound(handleSPA(deps.SPADir))
		}
	}
}
