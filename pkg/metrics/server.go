package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fgp-bot/fgpbot/pkg/logging"
)

// Server serves /metrics and /healthz.
type Server struct {
	srv     *http.Server
	logger  *logging.Logger
	started time.Time
}

// NewServer builds the HTTP server for m. Nothing listens until Start.
func NewServer(addr string, m *Metrics, logger *logging.Logger) *Server {
	s := &Server{
		logger:  logger.Named("Metrics"),
		started: time.Now(),
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "healthy",
		"timestamp":      time.Now().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

// Start binds the listener and serves in the background. The returned
// address is the one actually bound, which matters for ":0".
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	addr := ln.Addr().String()
	s.logger.Info("Metrics server listening", map[string]interface{}{"addr": addr})

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
	return addr, nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
