package hub

import (
	"context"
	"maps"
	"slices"

	"github.com/DoyleJ11/pickup-room-sync/internal/lobby"
	"github.com/DoyleJ11/pickup-room-sync/internal/room"
)

type HubMsg interface{ isHubMsg() }

type GetRoom struct {
	RoomID string
	Reply  chan *lobby.Lobby
}

type EnsureRoom struct {
	RoomID string
	State  room.State // only used if creation happens
	Reply  chan *lobby.Lobby
}

type RemoveRoom struct {
	RoomID string
}

type ListRooms struct {
	Reply chan []string
}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*lobby.Lobby
	ctx    context.Context
	cancel context.CancelFunc
}

type ShutdownHub struct{}

func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

func NewHub(parent context.Context) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*lobby.Lobby),
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetRoom:
				msg.Reply <- h.rooms[msg.RoomID] // May be nil

			case EnsureRoom:
				if lb := h.rooms[msg.RoomID]; lb != nil {
					msg.Reply <- lb
					break
				}

				lb := lobby.NewLobby(h.ctx, msg.State)
				h.rooms[msg.RoomID] = lb
				msg.Reply <- lb

			case RemoveRoom:
				if lb := h.rooms[msg.RoomID]; lb != nil {
					lb.Send(lobby.Shutdown{})
					delete(h.rooms, msg.RoomID)
				}

			case ListRooms:
				msg.Reply <- slices.Sorted(maps.Keys(h.rooms))

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				return
			}

		}
	}
}

func (h *Hub) shutdown() {
	for _, lb := range h.rooms {
		lb.Send(lobby.Shutdown{})
	}
	clear(h.rooms)
}

// Get returns the room's lobby, or nil if nobody has created it yet.
func (h *Hub) Get(ctx context.Context, roomID string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return h.ask(ctx, GetRoom{RoomID: roomID, Reply: reply}, reply)
}

// Ensure returns the room's lobby, creating an empty one if needed.
func (h *Hub) Ensure(ctx context.Context, roomID string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return h.ask(ctx, EnsureRoom{RoomID: roomID, State: room.NewEmptyState(), Reply: reply}, reply)
}

func (h *Hub) ask(ctx context.Context, m HubMsg, reply chan *lobby.Lobby) (*lobby.Lobby, error) {
	select {
	case h.inbox <- m:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, context.Canceled
	}
	select {
	case lb := <-reply:
		return lb, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, context.Canceled
	}
}

// List returns the ids of every live room, sorted.
func (h *Hub) List(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	select {
	case h.inbox <- ListRooms{Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, context.Canceled
	}
	select {
	case ids := <-reply:
		return ids, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, context.Canceled
	}
}
