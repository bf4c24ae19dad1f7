package store

import (
	"sync"

	"github.com/DoyleJ11/pickup-room-sync/internal/room"
)

// Store holds the current room state. Apply and Replace are the only
// writers; views read copies through State or Watch.
type Store struct {
	mu       sync.RWMutex
	state    room.State
	version  uint64
	sealed   bool
	watchers map[int]chan room.State
	nextID   int
}

func New(initial room.State) *Store {
	return &Store{
		state:    room.FromSnapshot(initial.Snapshot()),
		watchers: make(map[int]chan room.State),
	}
}

// Apply runs the reducer. It reports whether the state changed.
func (s *Store) Apply(e room.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return false
	}

	next := room.Reduce(s.state, e)
	if next.Equal(s.state) {
		return false
	}
	s.set(next)
	return true
}

// Replace overwrites the state wholesale with an authoritative snapshot.
func (s *Store) Replace(snap room.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return
	}
	s.set(room.FromSnapshot(snap))
}

// Seal turns every later write into a no-op and closes all watch channels.
func (s *Store) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return
	}
	s.sealed = true
	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
}

func (s *Store) State() room.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Version counts writes that changed the state (a replace always counts).
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Watch returns a channel that receives the current state immediately and
// then the newest state after each change. A slow reader only ever sees the
// latest value; writers never block on it.
func (s *Store) Watch() (<-chan room.State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan room.State, 1)
	if s.sealed {
		ch <- s.state.Clone()
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	ch <- s.state.Clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.watchers[id]; ok {
				close(c)
				delete(s.watchers, id)
			}
		})
	}
}

// set must be called with mu held.
func (s *Store) set(next room.State) {
	s.state = next
	s.version++
	for _, ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- next.Clone()
	}
}
