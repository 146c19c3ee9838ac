// Package server exposes the dialogue router over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"zonegate/internal/dialogue"
	"zonegate/internal/logging"
	"zonegate/internal/transparency"
	"zonegate/internal/usage"
)

// Dialogue is the part of the router the transport drives.
type Dialogue interface {
	Process(ctx context.Context, sessionID, message string) (*dialogue.Result, error)
	Answer(ctx context.Context, sessionID string, index int) (*dialogue.Result, error)
}

var _ Dialogue = (*dialogue.Router)(nil)

// Options are the transport settings.
type Options struct {
	Listen          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Usage, when set, is reported at GET /usage.
	Usage *usage.Tracker
}

// Server serves the chat API.
type Server struct {
	dlg    Dialogue
	traces *transparency.TraceStore
	opts   Options
}

// New creates a server. traces may be nil, in which case /traces answers 404
// and WebSocket clients get no stage frames.
func New(dlg Dialogue, traces *transparency.TraceStore, opts Options) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Server{dlg: dlg, traces: traces, opts: opts}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("POST /chat", s.chat)
	mux.HandleFunc("POST /chat/answer", s.answer)
	mux.HandleFunc("GET /traces/{trace_id}", s.trace)
	mux.HandleFunc("GET /usage", s.usage)
	mux.HandleFunc("GET /chat/ws", s.chatSocket)
	return withTrace(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.API("listening on %s", s.opts.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.API("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
