package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeKeepsPayloadShape(t *testing.T) {
	frame, err := Encode(EventTypingStart, "Alice")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(frame) != `{"event":"typing-start","data":"Alice"}` {
		t.Fatalf("unexpected frame %s", frame)
	}
}

func TestEncodeRawOmitsNilPayload(t *testing.T) {
	frame, err := EncodeRaw(EventJoinNotice, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(frame) != `{"event":"join-notice"}` {
		t.Fatalf("unexpected frame %s", frame)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		event   string
		data    string
		wantErr bool
	}{
		{name: "string payload", frame: `{"event":"join","data":"Bob"}`, event: EventJoin, data: `"Bob"`},
		{name: "object payload", frame: `{"event":"message","data":{"id":1,"text":"hi"}}`, event: EventMessage, data: `{"id":1,"text":"hi"}`},
		{name: "no payload", frame: `{"event":"typing-stop"}`, event: EventTypingStop},
		{name: "not json", frame: `hello`, wantErr: true},
		{name: "no event", frame: `{"data":"x"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode([]byte(tt.frame))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", env)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.Event != tt.event {
				t.Errorf("event = %q, want %q", env.Event, tt.event)
			}
			if string(env.Data) != tt.data {
				t.Errorf("data = %s, want %s", env.Data, tt.data)
			}
		})
	}
}

func TestDecodeMissingEventSentinel(t *testing.T) {
	_, err := Decode([]byte(`{}`))
	if !errors.Is(err, ErrMissingEvent) {
		t.Fatalf("expected ErrMissingEvent, got %v", err)
	}
}

func TestEncodeRawPreservesBytes(t *testing.T) {
	payload := json.RawMessage(`{"id":"a-1","sender":"Alice","text":"hi","ts":1700000000000,"extra":[1,2]}`)
	frame, err := EncodeRaw(EventMessage, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(env.Data) != string(payload) {
		t.Fatalf("payload changed: %s", env.Data)
	}
}

func TestIsRelayed(t *testing.T) {
	for _, event := range []string{EventMessage, EventTypingStart, EventTypingStop} {
		if !IsRelayed(event) {
			t.Errorf("%s should be relayed", event)
		}
	}
	for _, event := range []string{EventJoin, EventJoinNotice, "unknown", ""} {
		if IsRelayed(event) {
			t.Errorf("%q should not be relayed", event)
		}
	}
}
