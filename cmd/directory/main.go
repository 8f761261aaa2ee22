package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ciphermesh/internal/directory"
	"ciphermesh/internal/logger"
)

func main() {
	var addr, mode string
	root := &cobra.Command{
		Use:          "directory",
		Short:        "In-memory key directory and websocket relay",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(mode)
			if err != nil {
				return err
			}
			defer log.Sync()
			logger.SetGlobalLogger(log)

			srv := directory.NewServer(directory.NewMemoryStore(), log.Named("directory"))
			log.Logger.Info("directory listening", zap.String("addr", addr))
			err = srv.ListenAndServe(cmd.Context(), addr)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}
	root.Flags().StringVar(&addr, "addr", envOr("CIPHERMESH_DIRECTORY_ADDR", ":8080"), "listen address")
	root.Flags().StringVar(&mode, "log-mode", envOr("CIPHERMESH_LOG_MODE", logger.DevelopmentMode), "development or production")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
