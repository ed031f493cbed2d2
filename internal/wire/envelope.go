// internal/wire/envelope.go
// Package wire is the framed-message shape shared by the Gateway Channel
// (C5) and Client Channel (C6): {topic, event, ref?, payload}, JSON over the
// transport's websocket connection per §6. It has no knowledge of any
// particular event's payload contents — handlers decode Payload themselves.
package wire

import (
	"encoding/json"

	"github.com/Voskan/flarego/internal/util"
)

// Envelope is one frame in either direction.
type Envelope struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewRef mints a fresh correlation token for a request/reply round trip.
// Built on the teacher's ULID generator so refs sort chronologically, which
// is handy when eyeballing a `fzctl record` capture.
func NewRef() string { return util.MustNew() }

// Decode unmarshals e.Payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// Encode builds an Envelope, marshaling payload into e.Payload.
func Encode(topic, event, ref string, payload any) (Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		raw = b
	}
	return Envelope{Topic: topic, Event: event, Ref: ref, Payload: raw}, nil
}

// ErrorPayload is the body of an `{error, reason}` reply on a request's ref.
type ErrorPayload struct {
	Reason string `json:"reason"`
}
