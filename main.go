package main

import (
	"log/slog"

	"github.com/codedrop/codedrop/cmd"
	"github.com/codedrop/codedrop/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init(slog.LevelError)
	cmd.Execute()
}
