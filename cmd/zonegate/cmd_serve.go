package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zonegate/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket chat API",
	Long: `Serves the chat API:

  GET  /health
  POST /chat            {"session_id", "message"}
  POST /chat/answer     {"session_id", "selection_index"}
  GET  /traces/{id}     stage history of a request
  GET  /usage           language model token usage
  GET  /chat/ws         WebSocket chat

Stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.sessions.Run(ctx, cfg.GetSweepInterval())

	srv := server.New(a.router, a.traces, server.Options{
		Listen:       cfg.Server.Listen,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
		Usage:        a.usage,
	})
	logger.Info("Starting server", zap.String("listen", cfg.Server.Listen))
	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
