package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/codedrop/codedrop/internal/config"
	"github.com/codedrop/codedrop/internal/drop"
	"github.com/codedrop/codedrop/internal/logging"
	"github.com/codedrop/codedrop/internal/metrics"
	"github.com/codedrop/codedrop/internal/room"
	"github.com/codedrop/codedrop/internal/server"
	"github.com/codedrop/codedrop/internal/signaling"
)

const shutdownTimeout = 5 * time.Second

var (
	flagServePort int
	flagServeDB   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling broker and drop server",
	Long: `Run the pairing broker on /ws together with the drop endpoints.

Examples:
  codedrop serve
  codedrop serve --port 8080 --db /var/lib/codedrop/drops.db`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(slog.LevelInfo)

		cfg, err := config.LoadServer(config.ServerOptions{Port: flagServePort, DBPath: flagServeDB})
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func openDropStore(ctx context.Context, path string) (drop.Store, error) {
	if path == "" {
		return drop.NewMemoryStore(), nil
	}
	return drop.NewSQLiteStore(ctx, path)
}

func serve(ctx context.Context, cfg *config.Server) error {
	store, err := openDropStore(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	registry := room.NewRegistry()
	broker := signaling.NewBroker(registry, m)
	sweeper := signaling.NewSweeper(registry, broker, m)
	drops := drop.NewService(store, drop.WithMetrics(m))

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.New(broker, drops, m).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return broker.Run(ctx) })
	g.Go(func() error { return sweeper.Run(ctx) })
	g.Go(func() error { return drops.Run(ctx) })
	g.Go(func() error {
		slog.Info("starting signaling server", "addr", httpServer.Addr, "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("signaling server stopped")
	return err
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&flagServePort, "port", "p", 0, "Port to listen on (default $PORT or 3001)")
	serveCmd.Flags().StringVar(&flagServeDB, "db", "", "SQLite file for drops (default $CODEDROP_DB, in memory when empty)")
}
