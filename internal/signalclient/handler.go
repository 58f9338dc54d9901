package signalclient

import "github.com/codedrop/codedrop/internal/signaling"

// Handler routes incoming signaling messages to appropriate channels.
type Handler struct {
	client           *Client
	RoomCreated      chan string
	PeerJoined       chan struct{}
	PeerDisconnected chan struct{}
	Signal           chan *Message
	Error            chan string

	// Closed is closed once the broker connection is gone.
	Closed chan struct{}
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:           client,
		RoomCreated:      make(chan string, 1),
		PeerJoined:       make(chan struct{}, 1),
		PeerDisconnected: make(chan struct{}, 1),
		Signal:           make(chan *Message, 32),
		Error:            make(chan string, 1),
		Closed:           make(chan struct{}),
	}
}

// Start begins listening to incoming messages and routing them. It returns
// when the connection closes.
func (h *Handler) Start() {
	defer close(h.Closed)

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case signaling.TypeRoomCreated:
			notify(h.RoomCreated, string(msg.Code))

		case signaling.TypePeerJoined:
			notify(h.PeerJoined, struct{}{})

		case signaling.TypePeerDisconnected:
			notify(h.PeerDisconnected, struct{}{})

		case signaling.TypeOffer, signaling.TypeAnswer, signaling.TypeICECandidate:
			h.Signal <- msg

		case signaling.TypeError:
			notify(h.Error, msg.Message)
		}
	}
}

// notify delivers v unless an earlier value is still unread.
func notify[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}
