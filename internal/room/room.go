package room

import (
	"encoding/json"
	"slices"
)

type EventType string

const (
	EvtParticipantJoined EventType = "participant_joined"
	EvtParticipantLeft   EventType = "participant_left"
	EvtWaitlistJoined    EventType = "waitlist_joined"
	EvtWaitlistPromoted  EventType = "waitlist_promoted"
)

// Known reports whether the reducer understands t. Unknown types are still
// valid events; they just reduce to a no-op.
func (t EventType) Known() bool {
	switch t {
	case EvtParticipantJoined, EvtParticipantLeft, EvtWaitlistJoined, EvtWaitlistPromoted:
		return true
	default:
		return false
	}
}

type EventData struct {
	User string `json:"user"`
}

type Event struct {
	Type EventType `json:"type"`
	Data EventData `json:"data"`
}

// State is the membership view of one game room.
type State struct {
	Participants []string `json:"participants"`
	Waitlist     []string `json:"waitlist"`
}

// Snapshot is the authoritative body returned by GET /games/{roomId}.
type Snapshot struct {
	Participants []string `json:"participants"`
	Waitlist     []string `json:"waitlist"`
}

func NewEvent(t EventType, user string) Event {
	return Event{Type: t, Data: EventData{User: user}}
}

// ParseEvent decodes a JSON event body. Unknown types are not an error.
func ParseEvent(body []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Reduce maps (state, event) to the next state. It never mutates s and never fails.
// An event with an empty user leaves s unchanged whatever its type.
func Reduce(s State, e Event) State {
	u := e.Data.User
	if u == "" {
		return s
	}

	switch e.Type {
	case EvtParticipantJoined:
		if has(s, u) {
			return s
		}
		return State{Participants: appendCopy(s.Participants, u), Waitlist: s.Waitlist}

	case EvtParticipantLeft:
		if !slices.Contains(s.Participants, u) {
			return s
		}
		return State{Participants: without(s.Participants, u), Waitlist: s.Waitlist}

	case EvtWaitlistJoined:
		if has(s, u) {
			return s
		}
		return State{Participants: s.Participants, Waitlist: appendCopy(s.Waitlist, u)}

	case EvtWaitlistPromoted:
		// Promotion is applied even if u was never seen on the waitlist.
		next := State{Participants: s.Participants, Waitlist: without(s.Waitlist, u)}
		if !slices.Contains(next.Participants, u) {
			next.Participants = appendCopy(next.Participants, u)
		}
		return next

	default:
		return s
	}
}

func ReduceAll(s State, events []Event) State {
	for _, e := range events {
		s = Reduce(s, e)
	}
	return s
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	return State{
		Participants: slices.Clone(s.Participants),
		Waitlist:     slices.Clone(s.Waitlist),
	}
}

func (s State) Snapshot() Snapshot {
	c := s.Clone()
	return Snapshot{Participants: nonNil(c.Participants), Waitlist: nonNil(c.Waitlist)}
}

func (s State) Equal(o State) bool {
	return slices.Equal(s.Participants, o.Participants) && slices.Equal(s.Waitlist, o.Waitlist)
}
