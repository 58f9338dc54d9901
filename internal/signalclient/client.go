package signalclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codedrop/codedrop/internal/dns"
	"github.com/codedrop/codedrop/internal/signaling"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("signaling connection closed")

// Client manages the WebSocket connection to the signaling broker.
type Client struct {
	conn      *websocket.Conn
	dialer    *websocket.Dialer
	serverURL string
	incoming  chan *Message
	outgoing  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new signaling client
func NewClient(serverURL string) *Client {
	// Resolve through the public DNS fallback when the system resolver fails.
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		NetDialContext:   dns.NewResolver().DialContext,
	}

	return &Client{
		dialer:    dialer,
		serverURL: serverURL,
		incoming:  make(chan *Message, 16),
		outgoing:  make(chan []byte, 16),
		done:      make(chan struct{}),
	}
}

// Connect establishes WebSocket connection to the server.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.serverURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		msg, err := decode(data)
		if err != nil {
			slog.Debug("dropping malformed broker message", "error", err)
			continue
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send marshals v as JSON and queues it for the broker.
func (c *Client) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- data:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// SendSignal relays an offer, answer or candidate to the other peer.
func (c *Client) SendSignal(v any) error {
	return c.Send(v)
}

// CreateRoom asks the broker for a new code.
func (c *Client) CreateRoom() error {
	return c.Send(createRoom{Type: signaling.TypeCreateRoom})
}

// JoinRoom asks the broker to pair this connection with code.
func (c *Client) JoinRoom(code string) error {
	return c.Send(joinRoom{Type: signaling.TypeJoinRoom, Code: code})
}

// Incoming returns the channel for receiving messages. It is closed when
// the connection drops.
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
