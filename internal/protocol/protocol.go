// Package protocol defines the event contract shared by the relay server and
// its clients: event names, the JSON envelope every frame is wrapped in, and
// the single room every connection joins.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names exchanged over the websocket.
const (
	// EventJoin is sent by a client with its display name.
	EventJoin = "join"
	// EventJoinNotice is sent by the server to the other room members when
	// somebody joins. The payload is the joiner's display name.
	EventJoinNotice = "join-notice"
	// EventMessage carries a chat message object in both directions.
	EventMessage = "message"
	// EventTypingStart and EventTypingStop carry a display name.
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"
)

// DefaultRoom is the only room the relay knows about.
const DefaultRoom = "group"

// ErrMissingEvent is returned when a frame decodes but names no event.
var ErrMissingEvent = errors.New("envelope has no event name")

// Envelope is the JSON object every websocket frame carries. Data is kept
// raw so the relay can forward it without looking inside.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps data in an envelope for the named event.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return EncodeRaw(event, raw)
}

// EncodeRaw wraps an already-encoded payload. A nil payload is omitted.
func EncodeRaw(event string, data json.RawMessage) ([]byte, error) {
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", event, err)
	}
	return frame, nil
}

// Decode parses a frame into an envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, ErrMissingEvent
	}
	return env, nil
}

// IsRelayed reports whether the server forwards the event to room peers
// unchanged.
func IsRelayed(event string) bool {
	switch event {
	case EventMessage, EventTypingStart, EventTypingStop:
		return true
	default:
		return false
	}
}
