package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pickup-room-sync/internal/hub"
	"github.com/DoyleJ11/pickup-room-sync/internal/ws"
)

func SetupRoutes(h *hub.Hub, log *zap.Logger, token string) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthz", Healthz)

	r.Group(func(r chi.Router) {
		r.Use(RequireBearer(token))
		r.Get("/games", ListGames(h))
		r.Get("/games/{roomId}", GetSnapshot(h, log))
		r.Post("/games/{roomId}/events", PostEvent(h, log))
		r.Get("/ws", ws.Handler(h, log))
	})
	return r
}
