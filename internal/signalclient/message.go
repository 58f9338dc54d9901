package signalclient

import (
	"encoding/json"

	"github.com/codedrop/codedrop/internal/signaling"
)

// Message is an inbound broker message. Raw keeps the frame as received so
// negotiation payloads can be decoded by whoever owns the peer connection.
type Message struct {
	Type    string         `json:"type"`
	Code    signaling.Code `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type createRoom struct {
	Type string `json:"type"`
}

type joinRoom struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

func decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	msg.Raw = append(json.RawMessage(nil), data...)
	return &msg, nil
}
