package types

import "github.com/DoyleJ11/pickup-room-sync/internal/room"

// EventRequest is the body of POST /games/{roomId}/events.
type EventRequest = room.Event

type EventAccepted struct {
	RoomID  string `json:"room_id"`
	Changed bool   `json:"changed"`
	Version int    `json:"version"`
}

type RoomList struct {
	Rooms []string `json:"rooms"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
