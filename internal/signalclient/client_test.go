package signalclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codedrop/codedrop/internal/metrics"
	"github.com/codedrop/codedrop/internal/room"
	"github.com/codedrop/codedrop/internal/signaling"
)

func startBroker(t *testing.T) string {
	t.Helper()

	b := signaling.NewBroker(room.NewRegistry(), metrics.New())
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.Attach(conn)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connect(t *testing.T, url string) (*Client, *Handler) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewClient(url)
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	h := NewHandler(c)
	go h.Start()
	t.Cleanup(c.Close)
	return c, h
}

func receive[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func TestPairAndRelay(t *testing.T) {
	url := startBroker(t)
	sender, senderEvents := connect(t, url)
	receiver, receiverEvents := connect(t, url)

	if err := sender.CreateRoom(); err != nil {
		t.Fatal(err)
	}
	code := receive(t, senderEvents.RoomCreated, "room-created")
	if !room.ValidCode(code) {
		t.Fatalf("invalid code %q", code)
	}

	if err := receiver.JoinRoom(code); err != nil {
		t.Fatal(err)
	}
	receive(t, senderEvents.PeerJoined, "sender peer-joined")
	receive(t, receiverEvents.PeerJoined, "receiver peer-joined")

	offer := map[string]any{
		"type":  "offer",
		"offer": map[string]string{"type": "offer", "sdp": "v=0"},
	}
	if err := sender.SendSignal(offer); err != nil {
		t.Fatal(err)
	}
	msg := receive(t, receiverEvents.Signal, "offer")
	if msg.Type != signaling.TypeOffer {
		t.Fatalf("got %s, want offer", msg.Type)
	}
	if !strings.Contains(string(msg.Raw), `"sdp":"v=0"`) {
		t.Fatalf("offer body not relayed: %s", msg.Raw)
	}

	receiver.Close()
	receive(t, senderEvents.PeerDisconnected, "peer-disconnected")
	receive(t, receiverEvents.Closed, "receiver shutdown")
}

func TestJoinUnknownCode(t *testing.T) {
	url := startBroker(t)
	c, events := connect(t, url)

	if err := c.JoinRoom("0000"); err != nil {
		t.Fatal(err)
	}
	if got := receive(t, events.Error, "error"); got != signaling.ErrMsgInvalidCode {
		t.Fatalf("got %q, want %q", got, signaling.ErrMsgInvalidCode)
	}
}

func TestSendAfterClose(t *testing.T) {
	url := startBroker(t)
	c, _ := connect(t, url)

	c.Close()
	c.Close()
	if err := c.CreateRoom(); err != ErrClosed {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}
