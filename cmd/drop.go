package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codedrop/codedrop/internal/config"
	"github.com/codedrop/codedrop/internal/drop"
	"github.com/codedrop/codedrop/internal/files"
	"github.com/codedrop/codedrop/internal/transfer"
	"github.com/codedrop/codedrop/internal/ui"
)

var (
	flagDropServer string
	flagDropText   string
	flagDropDir    string
)

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Store a small file or text on the server for a couple of minutes",
	Long: `Store-and-forward for when a direct connection is not possible. A drop
lives for 2 minutes, holds at most 10 MiB and can be fetched by up to 5 devices.`,
}

var dropPutCmd = &cobra.Command{
	Use:   "put [file]",
	Short: "Upload a file or --text and print its code",
	Example: `  codedrop drop put notes.pdf
  codedrop drop put --text "the wifi password is hunter2"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildDropRequest(args)
		if err != nil {
			return err
		}

		client, err := dropClient()
		if err != nil {
			return err
		}

		stopSpinner := ui.RunSpinner("Uploading...")
		receipt, err := client.Put(cmd.Context(), *req)
		stopSpinner()
		if err != nil {
			return transfer.NewError("upload drop", err)
		}

		fmt.Println()
		ui.RenderDrop(receipt.Code, receipt.ExpiresAt, receipt.MaxDevices)
		return nil
	},
}

var dropGetCmd = &cobra.Command{
	Use:   "get <code>",
	Short: "Fetch a drop by its code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := parseCode(args[0])
		if err != nil {
			return err
		}

		device, err := config.DeviceID()
		if err != nil {
			return err
		}
		client, err := dropClient()
		if err != nil {
			return err
		}

		stopSpinner := ui.RunSpinner("Fetching...")
		got, err := client.Get(cmd.Context(), code, device)
		stopSpinner()
		if err != nil {
			return describeDropError(err)
		}

		fmt.Println()
		if got.Kind == drop.KindText {
			fmt.Println(got.Text)
		} else {
			dir := flagDropDir
			if dir == "" {
				dir = "."
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return transfer.NewError("create output dir", err)
			}
			path := files.UniquePath(dir, files.SafeName(got.Name))
			if err := os.WriteFile(path, got.Data, 0o644); err != nil {
				return transfer.NewFileError("write", path, err)
			}
			ui.RenderFile(got.Name, got.Size, got.MimeType)
			ui.PrintSuccessf("Saved to %s", path)
		}
		if got.Remaining == 0 {
			ui.PrintWarning("Last download used, the drop has been removed")
			return nil
		}
		ui.PrintInfof("%d device(s) remaining", got.Remaining)
		return nil
	},
}

func buildDropRequest(args []string) (*drop.PutRequest, error) {
	switch {
	case flagDropText != "" && len(args) > 0:
		return nil, errors.New("pass either a file or --text, not both")
	case flagDropText != "":
		return &drop.PutRequest{Kind: drop.KindText, Text: flagDropText}, nil
	case len(args) == 0:
		return nil, errors.New("nothing to drop: pass a file or --text")
	}

	info, err := files.Validate(args[0], drop.DefaultMaxSize)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(info.Path)
	if err != nil {
		return nil, transfer.NewFileError("read", info.Name, err)
	}
	return &drop.PutRequest{
		Kind:     drop.KindFile,
		Name:     info.Name,
		MimeType: info.Type,
		Data:     data,
	}, nil
}

func dropClient() (*drop.Client, error) {
	cfg, err := config.LoadClient(config.ClientOptions{ServerURL: flagDropServer})
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}
	return drop.NewClient(cfg.HTTPURL("")), nil
}

func describeDropError(err error) error {
	switch {
	case errors.Is(err, drop.ErrNotFound):
		return errors.New("invalid code or drop expired")
	case errors.Is(err, drop.ErrExpired):
		return errors.New("this drop has expired")
	case errors.Is(err, drop.ErrDeviceLimit):
		return fmt.Errorf("device limit reached (%d devices max)", drop.DefaultMaxDevices)
	}
	return transfer.NewError("fetch drop", err)
}

func init() {
	rootCmd.AddCommand(dropCmd)
	dropCmd.AddCommand(dropPutCmd, dropGetCmd)

	dropCmd.PersistentFlags().StringVar(&flagDropServer, "server", "", "Server URL (default $CODEDROP_SERVER or "+config.DefaultServerURL+")")
	dropPutCmd.Flags().StringVar(&flagDropText, "text", "", "Drop this text instead of a file")
	dropGetCmd.Flags().StringVarP(&flagDropDir, "dir", "d", "", "Directory to save a dropped file")
}
