package models

import (
	"encoding/json"
	"time"
)

// ConnectionState is the broker connection lifecycle state
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// MarshalJSON encodes the state by name
func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ConnectionStatus is the state plus the last recorded error
type ConnectionStatus struct {
	State     ConnectionState `json:"state"`
	LastError string          `json:"last_error,omitempty"`
	ClientID  string          `json:"client_id,omitempty"`
	Broker    string          `json:"broker"`
	Topics    []string        `json:"topics"`
}

// RawMessage is an inbound broker message kept for debugging
type RawMessage struct {
	Topic      string `json:"topic"`
	Payload    string `json:"payload"`
	ReceivedAt int64  `json:"received_at"` // epoch milliseconds
}

// NewRawMessage stamps a message with the receive time
func NewRawMessage(topic string, payload []byte, at time.Time) RawMessage {
	return RawMessage{
		Topic:      topic,
		Payload:    string(payload),
		ReceivedAt: at.UnixMilli(),
	}
}
