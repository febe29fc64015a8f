package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ternarybob/leadwatch/internal/app"
)

// ShutdownTimeout bounds how long Run waits for in-flight requests after its context ends
const ShutdownTimeout = 10 * time.Second

// Server is the local bridge: REST views over the job list, the event
// websocket and metrics
type Server struct {
	app      *app.App
	handler  http.Handler
	http     *http.Server
	listener net.Listener
}

// New builds the bridge for application without binding a port
func New(application *app.App) *Server {
	s := &Server{app: application}
	s.handler = s.bridgeHandler(s.setupRoutes())
	s.http = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler is the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Listen binds the configured address. Port 0 picks a free port; Addr reports it.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	cfg := s.app.Config.Server
	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return fmt.Errorf("listen on %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	s.listener = ln
	return nil
}

// Addr is the bound address once Listen succeeded, otherwise the configured one
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	cfg := s.app.Config.Server
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// Run serves until ctx ends, then drains in-flight requests for at most
// ShutdownTimeout. It binds first if Listen was not called.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.app.Logger.Info().
		Str("address", s.Addr()).
		Str("events", fmt.Sprintf("ws://%s/ws", s.Addr())).
		Msg("Bridge listening")

	served := make(chan error, 1)
	go func() {
		served <- s.http.Serve(s.listener)
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("bridge stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()

	// Upgraded websocket connections are not tracked by Shutdown
	s.app.WSHandler.Close()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("bridge shutdown: %w", err)
	}
	<-served
	s.app.Logger.Info().Msg("Bridge stopped")
	return nil
}
