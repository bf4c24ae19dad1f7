package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pickup-room-sync/internal/hub"
	"github.com/DoyleJ11/pickup-room-sync/internal/lobby"
	"github.com/DoyleJ11/pickup-room-sync/internal/types"
)

const (
	replyTimeout = 2 * time.Second
	maxEventBody = 64 << 10
)

var errLobbyGone = errors.New("room is shutting down")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}

// ListGames lists the rooms the server currently holds.
func ListGames(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := h.List(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "hub unavailable")
			return
		}
		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, http.StatusOK, types.RoomList{Rooms: ids})
	}
}

// GetSnapshot serves the authoritative membership of one room.
func GetSnapshot(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")

		lb, err := h.Get(r.Context(), roomID)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "hub unavailable")
			return
		}
		if lb == nil {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}

		view, err := viewOf(r, lb)
		if err != nil {
			log.Warn("snapshot request failed", zap.String("room", roomID), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, view.State.Snapshot())
	}
}

// PostEvent applies one membership event to a room, creating it on first use.
func PostEvent(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")

		var req types.EventRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		if !req.Type.Known() {
			writeError(w, http.StatusBadRequest, "unknown event type")
			return
		}
		if strings.TrimSpace(req.Data.User) == "" {
			writeError(w, http.StatusBadRequest, "missing user")
			return
		}

		lb, err := h.Ensure(r.Context(), roomID)
		if err != nil || lb == nil {
			writeError(w, http.StatusServiceUnavailable, "hub unavailable")
			return
		}

		reply := make(chan lobby.Result, 1)
		if !lb.Send(lobby.Apply{Event: req, Reply: reply}) {
			writeError(w, http.StatusServiceUnavailable, errLobbyGone.Error())
			return
		}

		select {
		case res := <-reply:
			log.Debug("event applied",
				zap.String("room", roomID),
				zap.String("type", string(req.Type)),
				zap.String("user", req.Data.User),
				zap.Bool("changed", res.Changed))
			writeJSON(w, http.StatusAccepted, types.EventAccepted{RoomID: roomID, Changed: res.Changed, Version: res.Version})
		case <-lb.Done():
			writeError(w, http.StatusServiceUnavailable, errLobbyGone.Error())
		case <-time.After(replyTimeout):
			writeError(w, http.StatusGatewayTimeout, "room did not answer")
		}
	}
}

func viewOf(r *http.Request, lb *lobby.Lobby) (lobby.View, error) {
	reply := make(chan lobby.View, 1)
	if !lb.Send(lobby.GetState{Reply: reply}) {
		return lobby.View{}, errLobbyGone
	}
	select {
	case v := <-reply:
		return v, nil
	case <-lb.Done():
		return lobby.View{}, errLobbyGone
	case <-r.Context().Done():
		return lobby.View{}, r.Context().Err()
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// RequireBearer rejects requests without the expected token. An empty token
// disables the check.
func RequireBearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header is required")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if !(len(parts) == 2 && parts[0] == "Bearer") {
				writeError(w, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
				return
			}
			if parts[1] != token {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
