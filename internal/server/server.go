package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"pellet_stove/internal/config"
)

const (
	defaultPort       = "8080"
	maxHeaderBytes    = 1 << 20
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server owns the dashboard's *http.Server. No WriteTimeout is set: the
// WebSocket status stream is long-lived and gorilla manages its own deadlines.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
}

func New(cfg config.HTTPConfig, handler http.Handler) *Server {
	rht := orDefault(cfg.ReadHeaderTimeout, readHeaderTimeout)
	return &Server{
		httpServer: &http.Server{
			Addr:              normalizeAddr(cfg.Port),
			Handler:           handler,
			MaxHeaderBytes:    maxHeaderBytes,
			ReadHeaderTimeout: rht,
			ReadTimeout:       rht,
			IdleTimeout:       orDefault(cfg.IdleTimeout, idleTimeout),
		},
		shutdownTimeout: orDefault(cfg.ShutdownTimeout, shutdownTimeout),
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// normalizeAddr accepts "8080" or ":8080"; empty means the default port.
func normalizeAddr(port string) string {
	switch {
	case port == "":
		return ":" + defaultPort
	case strings.Contains(port, ":"):
		return port
	default:
		return ":" + port
	}
}

func (s *Server) Addr() string { return s.httpServer.Addr }

// Run listens on the configured address. It returns nil after Shutdown.
func (s *Server) Run() error {
	return ignoreClosed(s.httpServer.ListenAndServe())
}

// Serve is Run on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	return ignoreClosed(s.httpServer.Serve(l))
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests,
// bounded by the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
