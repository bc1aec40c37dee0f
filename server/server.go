// Package server exposes the crew workflows over JSON-over-HTTP.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/teranos/moverdesk/auth"
	"github.com/teranos/moverdesk/crew"
	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/logger"
	"github.com/teranos/moverdesk/metrics"
	"github.com/teranos/moverdesk/records"
)

// ShutdownTimeout bounds how long in-flight requests may take to drain.
const ShutdownTimeout = 15 * time.Second

// Workflows is the crew surface the handlers call.
type Workflows interface {
	AssignWorkerToJob(ctx context.Context, jobID, email string) (crew.AssignOutcome, error)
	CheckStatus(ctx context.Context, jobID, email string) (bool, error)
	ClockIn(ctx context.Context, req crew.ClockInRequest) (crew.ClockInOutcome, error)
	Payouts(ctx context.Context, email string) ([]records.Record, error)
	Calendar(ctx context.Context, id string) ([]records.Record, error)
}

// Options configures a Server.
type Options struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Workflows Workflows
	Auth      *auth.Middleware
	Sink      metrics.Sink
	Gatherer  prometheus.Gatherer // nil disables /metrics
	Logger    *zap.SugaredLogger
}

// Server serves the moverdesk HTTP API
type Server struct {
	port         int
	readTimeout  time.Duration
	writeTimeout time.Duration

	crew     Workflows
	auth     *auth.Middleware
	sink     metrics.Sink
	gatherer prometheus.Gatherer
	logger   *zap.SugaredLogger

	handler http.Handler
}

// New creates a Server.
func New(opts Options) *Server {
	s := &Server{
		port:         opts.Port,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
		crew:         opts.Workflows,
		auth:         opts.Auth,
		sink:         metrics.OrNoop(opts.Sink),
		gatherer:     opts.Gatherer,
		logger:       opts.Logger,
	}
	if s.logger == nil {
		s.logger = logger.ComponentLogger("server")
	}
	if s.auth == nil {
		s.auth = auth.NewMiddleware(nil, s.logger)
	}
	if s.readTimeout <= 0 {
		s.readTimeout = 10 * time.Second
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = 30 * time.Second
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured port and serves until ctx is canceled,
// then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %d", s.port)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	s.logger.Infow(fmt.Sprintf("HTTP server listening on %s", ln.Addr()),
		"auth", s.auth.Enabled(),
		"metrics", s.gatherer != nil,
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
	}

	s.logger.Infow("Initiating server shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warnw("Server shutdown timed out, forcing exit",
			"timeout", ShutdownTimeout,
			logger.FieldError, err,
		)
		return errors.Wrap(err, "shutdown")
	}
	s.logger.Infow("Server shutdown complete")
	return nil
}
