package webrtc

import (
	"context"
	"log/slog"
	"time"

	pion "github.com/pion/webrtc/v4"

	"github.com/codedrop/codedrop/internal/transfer"
)

const (
	HighWaterMark = 2 * 1024 * 1024 // 2 MB - backpressure threshold
	LowWaterMark  = 512 * 1024      // 512 KB - resume threshold

	// SendTimeout bounds how long a send may wait for the buffer to drain.
	SendTimeout = 30 * time.Second
)

// Handlers receive what arrives on a DataChannel. Nil fields are skipped.
type Handlers struct {
	Text   func(text string) error
	Binary func(data []byte) error
	Close  func()
}

// DataChannel adapts a pion data channel to transfer.Channel. Sends block
// while more than HighWaterMark bytes are queued.
type DataChannel struct {
	dc      *pion.DataChannel
	drained chan struct{}
	closed  chan struct{}
}

var _ transfer.Channel = (*DataChannel)(nil)

func newDataChannel(dc *pion.DataChannel) *DataChannel {
	c := &DataChannel{
		dc:      dc,
		drained: make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
	dc.SetBufferedAmountLowThreshold(LowWaterMark)
	dc.OnBufferedAmountLow(func() {
		select {
		case c.drained <- struct{}{}:
		default:
		}
	})
	return c
}

// Label returns the channel label.
func (c *DataChannel) Label() string {
	return c.dc.Label()
}

// Attach routes inbound messages to h by frame kind.
func (c *DataChannel) Attach(h Handlers) {
	c.dc.OnMessage(func(msg pion.DataChannelMessage) {
		var err error
		switch {
		case msg.IsString && h.Text != nil:
			err = h.Text(string(msg.Data))
		case !msg.IsString && h.Binary != nil:
			err = h.Binary(msg.Data)
		}
		if err != nil {
			slog.Warn("data channel message rejected", "label", c.dc.Label(), "error", err)
		}
	})
	c.dc.OnClose(func() {
		if h.Close != nil {
			h.Close()
		}
		c.markClosed()
	})
}

// Closed is closed once the channel has closed.
func (c *DataChannel) Closed() <-chan struct{} {
	return c.closed
}

func (c *DataChannel) markClosed() {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}

func (c *DataChannel) SendText(text string) error {
	if err := c.waitForWindow(); err != nil {
		return err
	}
	return c.dc.SendText(text)
}

func (c *DataChannel) Send(data []byte) error {
	if err := c.waitForWindow(); err != nil {
		return err
	}
	return c.dc.Send(data)
}

func (c *DataChannel) waitForWindow() error {
	if c.dc.ReadyState() != pion.DataChannelStateOpen {
		return transfer.ErrChannelNotOpen
	}
	if c.dc.BufferedAmount() < HighWaterMark {
		return nil
	}

	timer := time.NewTimer(SendTimeout)
	defer timer.Stop()

	for c.dc.BufferedAmount() >= HighWaterMark {
		select {
		case <-c.drained:
		case <-c.closed:
			return transfer.ErrChannelClosed
		case <-timer.C:
			return transfer.ErrBufferTimeout
		}
	}
	return nil
}

// Flush waits until everything queued has been handed to the transport, so
// closing right after the last chunk does not drop it.
func (c *DataChannel) Flush(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for c.dc.BufferedAmount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return transfer.ErrChannelClosed
		case <-ticker.C:
		}
	}
	return nil
}

// Close closes the underlying channel.
func (c *DataChannel) Close() error {
	return c.dc.Close()
}
