package cmd

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/codedrop/codedrop/internal/files"
	"github.com/codedrop/codedrop/internal/transfer"
	"github.com/codedrop/codedrop/internal/ui"
	"github.com/codedrop/codedrop/internal/webrtc"
)

var (
	receiveFlags   peerFlags
	flagReceiveDir string
)

var receiveCmd = &cobra.Command{
	Use:     "receive <code>",
	Aliases: []string{"r"},
	Short:   "Receive a file from a sender",
	Long: `Join the sender's room with its 4-digit code and save the file it sends.

Examples:
  codedrop receive 4821
  codedrop receive 4821 --dir ~/Downloads`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := parseCode(args[0])
		if err != nil {
			return err
		}
		return receiveFile(cmd.Context(), code)
	},
}

func receiveFile(ctx context.Context, code string) error {
	outputDir := flagReceiveDir
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return transfer.NewError("create output dir", err)
	}

	cfg, err := receiveFlags.load()
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

	if err := joinRoom(ctx, conn, code); err != nil {
		return err
	}

	peer, err := webrtc.NewPeer(cfg, conn.Client)
	if err != nil {
		return err
	}
	defer peer.Close()

	var progressUI atomic.Pointer[ui.TransferUI]
	var receiver atomic.Pointer[transfer.Receiver]
	announced := make(chan transfer.Metadata, 1)
	peer.OnChannel(func(ch *webrtc.DataChannel) {
		r := transfer.NewReceiver(ch,
			transfer.WithMetadataHandler(func(meta transfer.Metadata) {
				announced <- meta
			}),
			transfer.WithReceiverProgress(func(p transfer.Progress) {
				if u := progressUI.Load(); u != nil {
					u.Update(p.Transferred, p.Total)
				}
			}),
		)
		ch.Attach(webrtc.Handlers{
			Text:   r.HandleText,
			Binary: r.HandleBinary,
			Close:  r.Close,
		})
		receiver.Store(r)
	})

	signalCtx, stopSignals := context.WithCancel(ctx)
	defer stopSignals()
	go conn.pumpSignals(signalCtx, peer)

	stopSpinner = ui.RunConnectionSpinner("Waiting for the sender's connection...")
	ch, err := conn.openChannel(ctx, peer)
	stopSpinner()
	if err != nil {
		return err
	}
	defer ch.Close()

	transferCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	quit := make(chan struct{})
	go conn.watchPeer(transferCtx, cancel, peer, quit)

	r := receiver.Load()
	select {
	case meta := <-announced:
		u := ui.NewTransferUI(ui.ModeReceive, meta.Name, meta.Size)
		progressUI.Store(u)
		u.Start()
		go func() {
			select {
			case <-u.Cancelled():
				close(quit)
			case <-transferCtx.Done():
			}
		}()
	case <-r.Done():
	case <-transferCtx.Done():
	}

	file, err := r.Wait(transferCtx)
	if u := progressUI.Load(); u != nil {
		u.Finish(err)
	}
	if err != nil {
		return err
	}

	path := files.UniquePath(outputDir, files.SafeName(file.Name))
	if err := os.WriteFile(path, file.Data, 0o644); err != nil {
		return transfer.NewFileError("write", path, err)
	}

	meta, _ := r.Metadata()
	fmt.Println()
	ui.RenderFile(meta.Name, meta.Size, meta.MimeType)
	transfer.RenderSummary(path, r.Progress())
	return nil
}

func joinRoom(ctx context.Context, conn *ConnectionContext, code string) error {
	if err := conn.Client.JoinRoom(code); err != nil {
		return transfer.NewError("join room", err)
	}

	select {
	case <-conn.Handler.PeerJoined:
		return nil
	case msg := <-conn.Handler.Error:
		return transfer.WrapError("join room", transfer.ErrSignalingError, msg)
	case <-conn.Handler.Closed:
		return transfer.WrapError("join room", transfer.ErrSignalingError, "connection closed")
	case <-ctx.Done():
		return transfer.NewError("join room", transfer.ErrTransferCancelled)
	}
}

func init() {
	rootCmd.AddCommand(receiveCmd)
	receiveFlags.register(receiveCmd)
	receiveCmd.Flags().StringVarP(&flagReceiveDir, "dir", "d", "", "Directory to save the received file")
}
