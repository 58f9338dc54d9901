package signaling

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Message types understood by the broker.
const (
	TypeCreateRoom   = "create-room"
	TypeJoinRoom     = "join-room"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"

	TypeRoomCreated      = "room-created"
	TypePeerJoined       = "peer-joined"
	TypePeerDisconnected = "peer-disconnected"
	TypeError            = "error"
)

// Error messages sent back to clients.
const (
	ErrMsgInvalidCode   = "Invalid code"
	ErrMsgRoomFull      = "Room is full"
	ErrMsgAlreadyInRoom = "Already in a room"
	ErrMsgNoCodes       = "No room codes available"
)

// header is the only part of an inbound message decoded before routing.
// Offer, answer and candidate messages are relayed as the raw bytes that
// arrived, whatever else they carry.
type header struct {
	Type string `json:"type"`
}

type joinRequest struct {
	Code Code `json:"code"`
}

// Envelope is the shape of messages the broker sends.
type Envelope struct {
	Type    string `json:"type"`
	Code    Code   `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Code is a room code that decodes from either a JSON string or number, since
// browser clients are not consistent about which one they send.
type Code string

func (c *Code) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Code(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return err
	}
	*c = Code(n.String())
	return nil
}

// relayed reports whether messages of type t are forwarded to the other peer.
func relayed(t string) bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	}
	return false
}

func encode(env Envelope) []byte {
	data, _ := json.Marshal(env)
	return data
}

func roomCreated(code string) []byte {
	return encode(Envelope{Type: TypeRoomCreated, Code: Code(code)})
}

func errorMessage(msg string) []byte {
	return encode(Envelope{Type: TypeError, Message: msg})
}

var (
	peerJoined       = encode(Envelope{Type: TypePeerJoined})
	peerDisconnected = encode(Envelope{Type: TypePeerDisconnected})
)
