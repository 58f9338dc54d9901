package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/codedrop/codedrop/internal/files"
	"github.com/codedrop/codedrop/internal/transfer"
	"github.com/codedrop/codedrop/internal/ui"
	"github.com/codedrop/codedrop/internal/webrtc"
)

// hangupWait bounds how long the sender waits for the receiver to close
// after the last chunk.
const hangupWait = 10 * time.Second

var sendFlags peerFlags

var sendCmd = &cobra.Command{
	Use:     "send <file>",
	Aliases: []string{"s"},
	Short:   "Send a file to a receiver",
	Long: `Create a room, print its 4-digit code and send the file to whoever joins.

Examples:
  codedrop send photo.jpg
  codedrop send --server wss://drop.example.com report.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendFile(cmd.Context(), args[0])
	},
}

func sendFile(ctx context.Context, path string) error {
	info, err := files.Validate(path, 0)
	if err != nil {
		return err
	}
	fmt.Println()
	ui.RenderFile(info.Name, info.Size, info.Type)

	cfg, err := sendFlags.load()
	if err != nil {
		return err
	}

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	conn, err := NewConnectionContext(ctx, cfg)
	stopSpinner()
	if err != nil {
		return err
	}
	defer conn.Close()

	code, err := createRoom(ctx, conn)
	if err != nil {
		return err
	}
	ui.RenderCode(code)

	if err := waitForPeer(ctx, conn); err != nil {
		return err
	}

	peer, err := webrtc.NewPeer(cfg, conn.Client)
	if err != nil {
		return err
	}
	defer peer.Close()

	var sender *transfer.Sender
	progressUI := ui.NewTransferUI(ui.ModeSend, info.Name, info.Size)
	peer.OnChannel(func(ch *webrtc.DataChannel) {
		sender = transfer.NewSender(ch, transfer.WithSenderProgress(func(p transfer.Progress) {
			progressUI.Update(p.Transferred, p.Total)
		}))
		ch.Attach(webrtc.Handlers{
			Text: func(text string) error {
				sender.HandleText(text)
				return nil
			},
		})
	})

	signalCtx, stopSignals := context.WithCancel(ctx)
	defer stopSignals()
	go conn.pumpSignals(signalCtx, peer)

	stopSpinner = ui.RunConnectionSpinner("Establishing WebRTC connection...")
	if err := peer.Offer(); err != nil {
		stopSpinner()
		return err
	}
	ch, err := conn.openChannel(ctx, peer)
	stopSpinner()
	if err != nil {
		return err
	}

	file, err := os.Open(info.Path)
	if err != nil {
		return transfer.NewFileError("open", info.Name, err)
	}
	defer file.Close()

	transferCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go conn.watchPeer(transferCtx, cancel, peer, progressUI.Cancelled())

	progressUI.Start()
	progress, err := sender.Send(transferCtx, file, transfer.Metadata{
		Name:     info.Name,
		Size:     info.Size,
		MimeType: info.Type,
	})
	if err == nil {
		err = ch.Flush(transferCtx)
	}
	progressUI.Finish(err)
	cancel()
	if err != nil {
		return err
	}

	waitForHangup(ctx, conn, peer, ch)
	transfer.RenderSummary(info.Name, progress)
	return nil
}

func createRoom(ctx context.Context, conn *ConnectionContext) (string, error) {
	if err := conn.Client.CreateRoom(); err != nil {
		return "", transfer.NewError("create room", err)
	}

	select {
	case code := <-conn.Handler.RoomCreated:
		return code, nil
	case msg := <-conn.Handler.Error:
		return "", transfer.WrapError("create room", transfer.ErrSignalingError, msg)
	case <-conn.Handler.Closed:
		return "", transfer.WrapError("create room", transfer.ErrSignalingError, "connection closed")
	case <-ctx.Done():
		return "", transfer.NewError("create room", transfer.ErrTransferCancelled)
	}
}

func waitForPeer(ctx context.Context, conn *ConnectionContext) error {
	fmt.Println()
	stopSpinner := ui.RunWaitingSpinner("Waiting for receiver to join...")
	defer stopSpinner()

	select {
	case <-conn.Handler.PeerJoined:
		return nil
	case msg := <-conn.Handler.Error:
		return transfer.WrapError("wait for peer", transfer.ErrSignalingError, msg)
	case <-conn.Handler.Closed:
		return transfer.WrapError("wait for peer", transfer.ErrSignalingError, "connection closed")
	case <-ctx.Done():
		return transfer.NewError("wait for peer", transfer.ErrTransferCancelled)
	}
}

// waitForHangup gives the receiver time to drain the channel before the
// connection is torn down.
func waitForHangup(ctx context.Context, conn *ConnectionContext, peer *webrtc.Peer, ch *webrtc.DataChannel) {
	timer := time.NewTimer(hangupWait)
	defer timer.Stop()

	select {
	case <-conn.Handler.PeerDisconnected:
	case <-ch.Closed():
	case <-peer.Failed():
	case <-timer.C:
	case <-ctx.Done():
	}
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendFlags.register(sendCmd)
}
