package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/codedrop/codedrop/internal/metrics"
	"github.com/codedrop/codedrop/internal/room"
)

type inbound struct {
	client *Client
	data   []byte
}

// Broker pairs connections into rooms and relays negotiation messages
// between the two occupants of a room.
//
// A single goroutine (Run) owns the connection table and processes every
// event, so messages from one connection are handled in arrival order.
type Broker struct {
	registry *room.Registry
	metrics  *metrics.Metrics

	clients map[room.ConnID]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	evict      chan []room.ConnID

	done chan struct{}
}

// NewBroker creates a broker backed by registry. m may be nil.
func NewBroker(registry *room.Registry, m *metrics.Metrics) *Broker {
	return &Broker{
		registry:   registry,
		metrics:    m,
		clients:    make(map[room.ConnID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		evict:      make(chan []room.ConnID),
		done:       make(chan struct{}),
	}
}

// Registry returns the room registry the broker operates on.
func (b *Broker) Registry() *room.Registry {
	return b.registry
}

// Attach hands an upgraded websocket connection to the broker and starts its
// pumps. It returns nil if the broker has stopped.
func (b *Broker) Attach(conn *websocket.Conn) *Client {
	c := &Client{
		broker: b,
		conn:   conn,
		id:     room.ConnID(uuid.NewString()),
		remote: conn.RemoteAddr().String(),
		send:   make(chan []byte, sendBuffer),
	}

	select {
	case b.register <- c:
	case <-b.done:
		conn.Close()
		return nil
	}

	go c.WritePump()
	go c.ReadPump()
	return c
}

// Evict closes the connections of conns. Their disconnect handling runs as
// usual once the sockets are gone.
func (b *Broker) Evict(conns []room.ConnID) {
	if len(conns) == 0 {
		return
	}
	select {
	case b.evict <- conns:
	case <-b.done:
	}
}

func (b *Broker) submit(in inbound) bool {
	select {
	case b.inbound <- in:
		return true
	case <-b.done:
		return false
	}
}

func (b *Broker) leave(c *Client) {
	select {
	case b.unregister <- c:
	case <-b.done:
	}
}

// Run processes broker events until ctx is cancelled. All connections are
// closed on return.
func (b *Broker) Run(ctx context.Context) error {
	defer func() {
		for _, c := range b.clients {
			c.shutdown()
		}
		close(b.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case c := <-b.register:
			b.clients[c.id] = c
			b.metrics.IncConn()
			slog.Debug("client registered", "conn", c.id, "remote", c.remote)

		case c := <-b.unregister:
			b.disconnect(c)

		case in := <-b.inbound:
			b.handle(in.client, in.data)

		case conns := <-b.evict:
			for _, id := range conns {
				if c, ok := b.clients[id]; ok {
					slog.Debug("evicting client", "conn", id)
					c.shutdown()
				}
			}
		}
	}
}

func (b *Broker) disconnect(c *Client) {
	if _, ok := b.clients[c.id]; !ok {
		return
	}
	delete(b.clients, c.id)
	c.shutdown()
	b.metrics.DecConn()
	slog.Debug("client unregistered", "conn", c.id, "remote", c.remote)

	code, ok := b.registry.Session(c.id)
	if !ok {
		return
	}
	remaining, deleted := b.registry.RemoveOccupant(code, c.id)
	if deleted {
		slog.Info("room deleted", "code", code)
		return
	}
	slog.Info("peer left room", "code", code, "conn", c.id)
	for _, id := range remaining {
		b.deliver(id, peerDisconnected)
	}
}

func (b *Broker) handle(c *Client, data []byte) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		slog.Debug("ignoring malformed message", "conn", c.id, "error", err)
		return
	}
	if h.Type == "" {
		slog.Debug("ignoring message without type", "conn", c.id)
		return
	}

	switch {
	case h.Type == TypeCreateRoom:
		b.createRoom(c)
	case h.Type == TypeJoinRoom:
		var req joinRequest
		if err := json.Unmarshal(data, &req); err != nil {
			slog.Debug("ignoring malformed join", "conn", c.id, "error", err)
			return
		}
		b.joinRoom(c, string(req.Code))
	case relayed(h.Type):
		b.relay(c, h.Type, data)
	default:
		slog.Debug("ignoring unknown message type", "conn", c.id, "type", h.Type)
	}
}

func (b *Broker) createRoom(c *Client) {
	code, err := b.registry.Create(c.id)
	switch {
	case errors.Is(err, room.ErrAlreadyInRoom):
		b.deliver(c.id, errorMessage(ErrMsgAlreadyInRoom))
		return
	case err != nil:
		slog.Warn("room creation failed", "conn", c.id, "error", err)
		b.deliver(c.id, errorMessage(ErrMsgNoCodes))
		return
	}

	b.metrics.IncRoomCreated()
	slog.Info("room created", "code", code, "conn", c.id)
	b.deliver(c.id, roomCreated(code))
}

func (b *Broker) joinRoom(c *Client, code string) {
	rm, err := b.registry.Join(code, c.id)
	if err != nil {
		b.metrics.IncJoinRejected()
		slog.Info("join rejected", "code", code, "conn", c.id, "error", err)
		msg := ErrMsgInvalidCode
		switch {
		case errors.Is(err, room.ErrRoomFull):
			msg = ErrMsgRoomFull
		case errors.Is(err, room.ErrAlreadyInRoom):
			msg = ErrMsgAlreadyInRoom
		}
		b.deliver(c.id, errorMessage(msg))
		return
	}

	b.metrics.IncJoin()
	slog.Info("peer joined room", "code", code, "conn", c.id)
	for _, id := range rm.Occupants {
		b.deliver(id, peerJoined)
	}
}

func (b *Broker) relay(c *Client, kind string, data []byte) {
	code, ok := b.registry.Session(c.id)
	if !ok {
		slog.Debug("dropping signal outside a room", "conn", c.id, "type", kind)
		return
	}
	rm, ok := b.registry.Get(code)
	if !ok {
		slog.Debug("dropping signal for expired room", "code", code, "type", kind)
		return
	}

	for _, id := range rm.Others(c.id) {
		if b.deliver(id, data) {
			b.metrics.IncRelayed()
		}
	}
}

// deliver queues data for id, skipping connections that are gone or backed up.
func (b *Broker) deliver(id room.ConnID, data []byte) bool {
	c, ok := b.clients[id]
	if ok && c.deliver(data) {
		return true
	}
	b.metrics.IncDropped()
	slog.Debug("skipped send to unavailable peer", "conn", id)
	return false
}
