// Package health serves the coordinator's read-only HTTP status surface:
// per-secondary connection status and a liveness probe.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ClusterStatusSource is the narrow collaborator the health server needs
// from the cluster node set. GetClusterStatusInfo returns interface{}
// (concretely []cluster.SecondaryStatus) so this package never imports
// internal/cluster, the same decoupling the teacher's
// ConnectionManagerHealth.GetHealth() achieved for *cluster.ConnectionManager.
type ClusterStatusSource interface {
	GetClusterStatusInfo() interface{}
}

// Server provides HTTP status endpoints for the secondary cluster.
type Server struct {
	cluster ClusterStatusSource
	addr    string
	srv     *http.Server
}

// NewServer creates a status server listening on the given port (default
// 8080 when port is 0).
func NewServer(cluster ClusterStatusSource, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		cluster: cluster,
		addr:    fmt.Sprintf(":%d", port),
	}
}

// Start begins serving status endpoints. Blocking; run in a goroutine.
//
// Available endpoints:
//   - GET /status  - per-secondary connection status (§6)
//   - GET /healthz - liveness probe
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.srv = &http.Server{Addr: s.addr, Handler: mux}

	slog.Info("starting status server", "address", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the status server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	statuses := s.cluster.GetClusterStatusInfo()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(statuses); err != nil {
		slog.Error("failed to encode status response", "error", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
