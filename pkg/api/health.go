package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/portguard/pkg/metrics"
	"github.com/cuemby/portguard/pkg/types"
)

// Version is the daemon build version, set via ldflags at build time.
var Version = "dev"

// Supervisor is the subset of *supervisor.Supervisor the health server
// needs. Defined locally so this package stays free of a direct
// supervisor import; *supervisor.Supervisor satisfies it as-is.
type Supervisor interface {
	Statistics() types.Statistics
	GetActiveReservationCount() (int, error)
}

// HealthServer provides HTTP health check endpoints for the portguard
// daemon.
type HealthServer struct {
	sup Supervisor
	mux *http.ServeMux
}

// NewHealthServer creates a new health check HTTP server. sup may be nil
// before the supervisor has finished Initialize, in which case /ready
// reports not ready rather than panicking.
func NewHealthServer(sup Supervisor) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{sup: sup, mux: mux}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start starts the health check HTTP server. Blocks until the listener
// fails or is closed.
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// HealthResponse is the /health response body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse is the /ready response body.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler is a liveness check: 200 if the process is alive,
// regardless of supervisor state.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   Version,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// readyHandler checks whether the supervisor has completed its boot
// sequence and the reservation store is reachable.
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	if hs.sup == nil {
		checks["supervisor"] = "not initialized"
		ready = false
		message = "supervisor not initialized"
	} else {
		stats := hs.sup.Statistics()
		if stats.LastScan.IsZero() {
			checks["scan"] = "no scan completed yet"
			ready = false
			message = "waiting for initial scan"
		} else {
			checks["scan"] = fmt.Sprintf("last scan at %s", stats.LastScan.Format(time.RFC3339))
		}

		if _, err := hs.sup.GetActiveReservationCount(); err != nil {
			checks["store"] = fmt.Sprintf("error: %v", err)
			ready = false
			if message == "" {
				message = "reservation store not accessible"
			}
		} else {
			checks["store"] = "ok"
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// GetHandler returns the HTTP handler for embedding in other servers.
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}
