// Copyright 2024-2025 Ali Sufyan Baig
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpapi serves the admin surface on its own listener,
// separate from the proxy port: JSON statistics, statistics reset,
// Prometheus metrics, and a liveness check. The admin server is
// strictly read-side except for the reset endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/alisufyanbaig-dev/internet-load-balancer/intf"
	"github.com/alisufyanbaig-dev/internet-load-balancer/stats"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Server is the admin HTTP server.
type Server struct {
	addr       string
	registry   *intf.Registry
	aggregator *stats.Aggregator
	logger     *zap.Logger
	server     *http.Server
}

func NewServer(addr string, registry *intf.Registry, aggregator *stats.Aggregator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:       addr,
		registry:   registry,
		aggregator: aggregator,
		logger:     logger,
	}
}

// Start runs the admin server until ctx is cancelled, then shuts it
// down gracefully. It blocks; run it in its own goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("admin server shutdown", zap.Error(err))
		}
	}()

	s.logger.Info("admin server listening", zap.String("addr", s.addr))
	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/stats/reset", s.handleStatsReset).Methods(http.MethodPost)
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		stats.NewCollector(s.aggregator),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	router.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return router
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.aggregator.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		s.logger.Error("encoding stats response", zap.Error(err))
	}
}

// handleStatsReset zeroes the accumulated counters. Interface status,
// in-flight connection counts, and recovery timestamps survive a reset.
func (s *Server) handleStatsReset(w http.ResponseWriter, _ *http.Request) {
	s.registry.ResetAllStats()
	s.logger.Info("interface statistics reset")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("admin request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Duration("elapsed", time.Since(start)))
	})
}
