package stomp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DoyleJ11/pickup-room-sync/internal/room"
)

func Topic(roomID string) string          { return "/topic/games/" + roomID }
func SubscriptionID(roomID string) string { return "sub-" + roomID }

// Connect is the literal CONNECT frame the client opens with.
func Connect() []byte {
	return Encode(Frame{Command: CmdConnect})
}

func Subscribe(roomID string) []byte {
	return Encode(Frame{
		Command: CmdSubscribe,
		Headers: []Header{
			{Key: "id", Value: SubscriptionID(roomID)},
			{Key: "destination", Value: Topic(roomID)},
		},
	})
}

func Connected() []byte {
	return Encode(Frame{Command: CmdConnected, Headers: []Header{{Key: "version", Value: "1.2"}}})
}

func Error(message string) []byte {
	return Encode(Frame{Command: CmdError, Headers: []Header{{Key: "message", Value: message}}})
}

// Message wraps a room event for delivery to a subscriber.
func Message(roomID, messageID string, e room.Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return Encode(Frame{
		Command: CmdMessage,
		Headers: []Header{
			{Key: "subscription", Value: SubscriptionID(roomID)},
			{Key: "destination", Value: Topic(roomID)},
			{Key: "message-id", Value: messageID},
			{Key: "content-type", Value: "application/json"},
		},
		Body: body,
	}), nil
}

// DecodeEvent turns one MESSAGE frame into a room event. A body that is not
// JSON or has no type is ErrMalformedFrame; an unknown type is not an error.
func DecodeEvent(data []byte) (room.Event, error) {
	f, err := Decode(data)
	if err != nil {
		return room.Event{}, err
	}
	if f.Command != CmdMessage {
		return room.Event{}, fmt.Errorf("%w: got %s", ErrNotMessage, f.Command)
	}

	var raw struct {
		Type *room.EventType `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(f.Body, &raw); err != nil {
		return room.Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if raw.Type == nil || *raw.Type == "" {
		return room.Event{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	e := room.Event{Type: *raw.Type}
	if len(raw.Data) > 0 && string(raw.Data) != "null" {
		if err := json.Unmarshal(raw.Data, &e.Data); err != nil {
			if e.Type.Known() {
				return room.Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
			}
			// Future event types may carry any data shape.
			e.Data = room.EventData{}
		}
	}
	return e, nil
}

// RoomFromDestination extracts the room id from a /topic/games/{id} destination.
func RoomFromDestination(dest string) (string, bool) {
	id, ok := strings.CutPrefix(dest, Topic(""))
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
