package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/codedrop/codedrop/internal/config"
	"github.com/codedrop/codedrop/internal/room"
	"github.com/codedrop/codedrop/internal/signalclient"
	"github.com/codedrop/codedrop/internal/transfer"
	"github.com/codedrop/codedrop/internal/webrtc"
)

const (
	connectTimeout = 15 * time.Second
	channelTimeout = 30 * time.Second
)

// peerFlags are the connection flags shared by send and receive.
type peerFlags struct {
	server   string
	stun     string
	turn     string
	turnUser string
	turnPass string
}

func (f *peerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.server, "server", "", "Signaling server URL (default $CODEDROP_SERVER or "+config.DefaultServerURL+")")
	cmd.Flags().StringVarP(&f.stun, "stun", "s", "", "Custom STUN server")
	cmd.Flags().StringVarP(&f.turn, "turn", "t", "", "Custom TURN server")
	cmd.Flags().StringVar(&f.turnUser, "turn-user", "", "TURN username")
	cmd.Flags().StringVar(&f.turnPass, "turn-pass", "", "TURN password")
}

func (f *peerFlags) load() (*config.Client, error) {
	cfg, err := config.LoadClient(config.ClientOptions{
		ServerURL:  f.server,
		STUNServer: f.stun,
		TURNServer: f.turn,
		TURNUser:   f.turnUser,
		TURNPass:   f.turnPass,
	})
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}
	return cfg, nil
}

// ConnectionContext bundles the broker connection of one command run.
type ConnectionContext struct {
	Client  *signalclient.Client
	Handler *signalclient.Handler
	Config  *config.Client
}

func NewConnectionContext(ctx context.Context, cfg *config.Client) (*ConnectionContext, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client := signalclient.NewClient(cfg.WebSocketURL())
	if err := client.Connect(ctx); err != nil {
		return nil, transfer.NewError("connect to server", err)
	}

	handler := signalclient.NewHandler(client)
	go handler.Start()

	return &ConnectionContext{
		Client:  client,
		Handler: handler,
		Config:  cfg,
	}, nil
}

func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// pumpSignals feeds relayed negotiation messages to peer until ctx ends.
func (c *ConnectionContext) pumpSignals(ctx context.Context, peer *webrtc.Peer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Handler.Closed:
			return
		case msg := <-c.Handler.Signal:
			if err := peer.HandleSignal(msg.Raw); err != nil {
				slog.Warn("signal rejected", "type", msg.Type, "error", err)
			}
		}
	}
}

// openChannel waits for the file channel, failing early if the peer leaves.
func (c *ConnectionContext) openChannel(ctx context.Context, peer *webrtc.Peer) (*webrtc.DataChannel, error) {
	ctx, cancel := context.WithTimeout(ctx, channelTimeout)
	defer cancel()

	type result struct {
		ch  *webrtc.DataChannel
		err error
	}
	opened := make(chan result, 1)
	go func() {
		ch, err := peer.WaitChannel(ctx)
		opened <- result{ch, err}
	}()

	select {
	case r := <-opened:
		return r.ch, r.err
	case <-c.Handler.PeerDisconnected:
		return nil, transfer.NewError("connect", transfer.ErrPeerDisconnected)
	}
}

// watchPeer cancels the transfer if the peer or its connection goes away.
func (c *ConnectionContext) watchPeer(ctx context.Context, cancel context.CancelFunc, peer *webrtc.Peer, cancelled <-chan struct{}) {
	select {
	case <-ctx.Done():
	case <-c.Handler.PeerDisconnected:
		cancel()
	case <-peer.Failed():
		cancel()
	case <-cancelled:
		cancel()
	}
}

func parseCode(input string) (string, error) {
	if !room.ValidCode(input) {
		return "", fmt.Errorf("invalid code %q: expected %d digits", input, room.CodeLength)
	}
	return input, nil
}
