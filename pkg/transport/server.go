package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/cuemby/portguard/pkg/supervisor"
)

// Server is the Unix-socket JSON transport for the outward port
// operations (spec §6). It composes a *supervisor.Supervisor directly:
// unlike pkg/api's two-method health interface, every outward operation
// needs the supervisor's domain-specific result types, so there is
// nothing to gain from a narrower local interface here.
type Server struct {
	sup *supervisor.Supervisor
	mux *http.ServeMux
	srv *http.Server
}

// New builds a Server routing every outward operation to sup.
func New(sup *supervisor.Supervisor) *Server {
	mux := http.NewServeMux()
	s := &Server{sup: sup, mux: mux}

	mux.HandleFunc("/v1/check", s.handleCheck)
	mux.HandleFunc("/v1/reserve", s.handleReserve)
	mux.HandleFunc("/v1/release", s.handleRelease)
	mux.HandleFunc("/v1/suggest", s.handleSuggest)
	mux.HandleFunc("/v1/validate", s.handleValidate)
	mux.HandleFunc("/v1/scan_range", s.handleScanRange)
	mux.HandleFunc("/v1/ports", s.handleGetPortsInUse)
	mux.HandleFunc("/v1/port_label", s.handlePortLabel)
	mux.HandleFunc("/v1/port_documentation", s.handlePortDocumentation)
	mux.HandleFunc("/v1/statistics", s.handleStatistics)

	return s
}

// Start listens on a Unix socket at socketPath and serves until Stop is
// called or the listener fails. A stale socket file from an unclean
// shutdown is removed before binding.
func (s *Server) Start(socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		listener.Close()
		return err
	}

	s.srv = &http.Server{
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	err = s.srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Handler returns the routed mux, for tests that exercise it without a
// real socket.
func (s *Server) Handler() http.Handler {
	return s.mux
}
