// Package server wraps the pipeline handler in an http.Server with
// graceful shutdown, grounded on the teacher's rungroup shutdown sequence
// in ais/daemon.go (stop signaled, runner given a bounded window to drain,
// then the process exits) re-expressed with net/http's native
// Shutdown(ctx) instead of a hand-rolled runner interface.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Config bounds the listener and its shutdown grace period.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig mirrors sane net/http server defaults; ListenAddr must
// still be supplied by the caller.
func DefaultConfig(listenAddr string) Config {
	return Config{
		ListenAddr:      listenAddr,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0, // streaming responses must not be capped
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Server owns the process's single listening http.Server.
type Server struct {
	httpServer *http.Server
	cfg        Config
	log        *zap.Logger
}

// New constructs a Server bound to handler but does not start listening.
func New(cfg Config, handler http.Handler, log *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		cfg: cfg,
		log: log,
	}
}

// Run blocks serving HTTP until ctx is cancelled, then drains in-flight
// requests for up to ShutdownTimeout before returning. A listener error
// other than the expected "server closed" on shutdown is returned as-is.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.cfg.ListenAddr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log.Info("shutdown requested, draining in-flight requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
