// Package ws serves the streaming side of the reference room server: a
// websocket that speaks the STOMP-like framing and forwards room events to
// one subscription per connection.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pickup-room-sync/internal/hub"
	"github.com/DoyleJ11/pickup-room-sync/internal/lobby"
	"github.com/DoyleJ11/pickup-room-sync/internal/room"
	"github.com/DoyleJ11/pickup-room-sync/internal/stomp"
)

const (
	Subprotocol  = "v12.stomp"
	writeTimeout = 3 * time.Second
	outboxSize   = 32
)

func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols: []string{Subprotocol},
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.CloseNow()

		s := &session{
			id:   uuid.NewString(),
			conn: conn,
			hub:  h,
			log:  log,
		}
		s.log = log.With(zap.String("conn", s.id))
		s.serve(r.Context())
	}
}

type session struct {
	id   string
	conn *websocket.Conn
	hub  *hub.Hub
	log  *zap.Logger

	lb     *lobby.Lobby
	roomID string
}

// serve is the reader loop. It returns when the client goes away or the
// subscription ends.
func (s *session) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.unsubscribe()

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			// Treat clean close/going-away as normal:
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				s.log.Debug("read ended", zap.Error(err))
			}
			return
		}

		for _, raw := range stomp.Split(data) {
			f, err := stomp.Decode(raw)
			if err != nil {
				s.fail(ctx, "malformed frame")
				return
			}
			if !s.handle(ctx, cancel, f) {
				return
			}
		}
	}
}

func (s *session) handle(ctx context.Context, cancel context.CancelFunc, f stomp.Frame) bool {
	switch f.Command {
	case stomp.CmdConnect:
		return s.write(ctx, stomp.Connected()) == nil

	case stomp.CmdSubscribe:
		if s.lb != nil {
			s.fail(ctx, "already subscribed")
			return false
		}
		dest, _ := f.Get("destination")
		roomID, ok := stomp.RoomFromDestination(dest)
		if !ok {
			s.fail(ctx, "unknown destination")
			return false
		}
		lb, err := s.hub.Ensure(ctx, roomID)
		if err != nil || lb == nil {
			s.fail(ctx, "room unavailable")
			return false
		}

		out := make(chan room.Event, outboxSize)
		if !lb.Send(lobby.Subscribe{ClientID: s.id, Outbox: out}) {
			s.fail(ctx, "room unavailable")
			return false
		}
		s.lb, s.roomID = lb, roomID
		s.log.Info("subscribed", zap.String("room", roomID))

		// Writer goroutine
		go s.forward(ctx, cancel, out)
		return true

	default:
		s.fail(ctx, "unsupported command "+string(f.Command))
		return false
	}
}

// forward writes every room event as a MESSAGE frame. When the lobby closes
// the outbox (slow client or room shutdown) the connection is closed so the
// client recovers from a snapshot.
func (s *session) forward(ctx context.Context, cancel context.CancelFunc, out <-chan room.Event) {
	defer cancel()
	for e := range out {
		frame, err := stomp.Message(s.roomID, uuid.NewString(), e)
		if err != nil {
			s.log.Warn("encode event", zap.Error(err))
			continue
		}
		if err := s.write(ctx, frame); err != nil {
			s.log.Debug("write failed", zap.Error(err))
			return
		}
	}
	_ = s.conn.Close(websocket.StatusGoingAway, "subscription ended")
}

func (s *session) write(ctx context.Context, frame []byte) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(wctx, websocket.MessageText, frame)
}

// fail sends an ERROR frame and closes the connection.
func (s *session) fail(ctx context.Context, reason string) {
	s.log.Warn("closing connection", zap.String("reason", reason))
	_ = s.write(ctx, stomp.Error(reason))
	_ = s.conn.Close(websocket.StatusPolicyViolation, reason)
}

func (s *session) unsubscribe() {
	if s.lb == nil {
		return
	}
	s.lb.Send(lobby.Unsubscribe{ClientID: s.id})
}
