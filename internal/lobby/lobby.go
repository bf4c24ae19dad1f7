package lobby

import (
	"context"

	"github.com/DoyleJ11/pickup-room-sync/internal/room"
)

type Msg interface{ isLobbyMsg() }

// Apply runs one membership event against the authoritative state.
type Apply struct {
	Event room.Event
	Reply chan Result // optional
}

func (Apply) isLobbyMsg() {}

type Result struct {
	Changed bool
	Version int
}

type Subscribe struct {
	ClientID string
	Outbox   chan room.Event // where this subscriber wants to receive events
}

func (Subscribe) isLobbyMsg() {}

type Unsubscribe struct{ ClientID string }

func (Unsubscribe) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type View struct {
	Version    int
	NumClients int
	State      room.State
}

// Lobby owns the membership of one pickup game. Only its loop goroutine
// touches state and clients.
type Lobby struct {
	inbox   chan Msg
	state   room.State
	version int
	clients map[string]chan room.Event
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewLobby(parent context.Context, initial room.State) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	l := &Lobby{
		inbox:   make(chan Msg, 64), // Small buffer
		state:   room.FromSnapshot(initial.Snapshot()),
		version: 0,
		clients: make(map[string]chan room.Event),
		ctx:     ctx,
		cancel:  cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Subscribe:
				l.clients[msg.ClientID] = msg.Outbox

			case Unsubscribe:
				if ch, ok := l.clients[msg.ClientID]; ok {
					close(ch)
					delete(l.clients, msg.ClientID)
				}

			case Apply:
				next := room.Reduce(l.state, msg.Event)
				changed := !next.Equal(l.state)
				if changed {
					l.state = next
					l.version++
					l.broadcast(msg.Event)
				}
				if msg.Reply != nil {
					msg.Reply <- Result{Changed: changed, Version: l.version}
				}

			case GetState:
				msg.Reply <- View{
					Version:    l.version,
					NumClients: len(l.clients),
					State:      l.state.Clone(),
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) shutdown() {
	for id, ch := range l.clients {
		close(ch) // Tell subscriber no more events
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) broadcast(e room.Event) {
	for id, ch := range l.clients {
		select {
		case ch <- e:
			//ok
		default:
			// Subscriber is slow/full - drop them. It will resync from a snapshot.
			close(ch)
			delete(l.clients, id)
		}
	}
}

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the lobby has shut down.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

// Send delivers m unless the lobby has already shut down.
func (l *Lobby) Send(m Msg) bool {
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	}
}
