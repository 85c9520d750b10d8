package gateway

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Inbound message types.
const (
	TypeSubscribeDisaster   = "subscribe-disaster"
	TypeUnsubscribeDisaster = "unsubscribe-disaster"
	TypeSubscribeLocation   = "subscribe-location"
	TypeAssessRisk          = "assess-risk"
	TypePing                = "ping"
)

// Outbound message types.
const (
	TypeConnected      = "connected"
	TypeDisasterAlert  = "disaster-alert"
	TypePersonalAlert  = "personal-alert"
	TypeAllClear       = "all-clear"
	TypeRiskAssessment = "risk-assessment"
	TypeSubscribed     = "subscribed"
	TypeUnsubscribed   = "unsubscribed"
	TypePong           = "pong"
	TypeError          = "error"
)

// typeInvalid marks an inbound frame that could not be decoded.
const typeInvalid = "invalid"

// Message is the envelope of every frame in both directions.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewMessage(msgType string, data any) (Message, error) {
	if data == nil {
		return Message{Type: msgType}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("encoding %s payload: %w", msgType, err)
	}
	return Message{Type: msgType, Data: raw}, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s: missing data", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%s: %w", m.Type, err)
	}
	return nil
}

// IsInvalid reports whether the frame failed to decode as an envelope.
func (m Message) IsInvalid() bool {
	return m.Type == typeInvalid
}

type ErrorPayload struct {
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"` // type of the offending request
}

func ErrorMessage(ref, text string) Message {
	msg, _ := NewMessage(TypeError, ErrorPayload{Message: text, Ref: ref})
	return msg
}

func encodeFrame(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func decodeFrame(b []byte) Message {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil || m.Type == "" {
		return Message{Type: typeInvalid}
	}
	return m
}
