package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rybkr/akashica/internal/httpapi"
)

var (
	flagServeAddr      string
	flagServeCacheSize int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP/WebSocket API over the repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()

		srv := httpapi.NewServer(repo, httpapi.Config{
			Addr:      flagServeAddr,
			Logger:    slog.Default(),
			CacheSize: flagServeCacheSize,
		})

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		slog.Info("akashica serving", "addr", flagServeAddr)

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
		case <-ctx.Done():
			slog.Info("shutdown initiated, press Ctrl+C again to force exit")
			stop()
			srv.Shutdown()
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", ":8080", "address to listen on")
	serveCmd.Flags().IntVar(&flagServeCacheSize, "cache-size", 0, "commit-file read cache size (0 = server default)")
}
