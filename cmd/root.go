package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codedrop/codedrop/internal/transfer"
	"github.com/codedrop/codedrop/internal/ui"
	"github.com/codedrop/codedrop/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "codedrop",
	Short:   "Pair two devices with a 4-digit code and send a file over WebRTC",
	Long:    `codedrop pairs two devices through a small signaling broker using a short numeric code, then streams a file directly between them over a WebRTC data channel. When a direct connection is not possible, "codedrop drop" stores a small payload on the broker for a couple of minutes instead.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		code := 1
		if transfer.Cancelled(err) {
			ui.PrintWarning("Transfer cancelled")
			code = 130
		} else {
			ui.PrintError(err.Error())
		}
		stop()
		os.Exit(code)
	}
}
