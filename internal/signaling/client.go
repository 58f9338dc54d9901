package signaling

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codedrop/codedrop/internal/room"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // enough for SDP with a full candidate list

	// Outbound messages buffered per connection before sends are dropped.
	sendBuffer = 64
)

// Client is a single websocket connection attached to the broker.
type Client struct {
	broker *Broker
	conn   *websocket.Conn
	id     room.ConnID
	remote string

	// send is drained by WritePump. Only the broker's Run loop writes to or
	// closes it.
	send chan []byte

	// closed is owned by the Run loop.
	closed bool
}

// ID returns the connection id.
func (c *Client) ID() room.ConnID {
	return c.id
}

// ReadPump pumps messages from the websocket connection to the broker.
//
// There is at most one reader per connection, so all reads happen here.
func (c *Client) ReadPump() {
	defer func() {
		c.broker.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Debug("read failed", "conn", c.id, "remote", c.remote, "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			slog.Debug("ignoring non-text frame", "conn", c.id)
			continue
		}
		if !c.broker.submit(inbound{client: c, data: data}) {
			return
		}
	}
}

// WritePump pumps messages from the broker to the websocket connection.
//
// There is at most one writer per connection, so all writes happen here.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The broker closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("write failed", "conn", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliver queues data without blocking. Must only be called from Run.
func (c *Client) deliver(data []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the outbound queue so WritePump sends a close frame.
// Must only be called from Run.
func (c *Client) shutdown() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
