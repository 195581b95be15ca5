// Package health serves liveness, readiness and relay counters over HTTP.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/tinyland-inc/crossbridge/pkg/logger"
)

type Server struct {
	server    *http.Server
	mu        sync.RWMutex
	checks    map[string]Check
	stats     func() any
	startTime time.Time
}

// Check reports whether a dependency is usable, with a short reason.
type Check func(ctx context.Context) (bool, string)

type CheckResult struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type StatusResponse struct {
	Status string        `json:"status"`
	Uptime string        `json:"uptime"`
	Checks []CheckResult `json:"checks,omitempty"`
}

func NewServer(host string, port int) *Server {
	s := &Server{
		checks:    make(map[string]Check),
		startTime: time.Now(),
	}
	s.server = &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// RegisterCheck adds a readiness check. Registering a name twice replaces it.
func (s *Server) RegisterCheck(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

func (s *Server) SetStatsFunc(fn func() any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = fn
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ready", s.readyHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)
	return mux
}

// Start serves until Stop. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	logger.InfoCF("health", "Health server listening", map[string]any{"addr": s.server.Addr})
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status: "ok",
		Uptime: s.uptime(),
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	checks := make(map[string]Check, len(s.checks))
	for name, c := range s.checks {
		checks[name] = c
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := StatusResponse{Status: "ready", Uptime: s.uptime()}
	status := http.StatusOK
	for _, name := range slices.Sorted(maps.Keys(checks)) {
		ok, msg := checks[name](ctx)
		resp.Checks = append(resp.Checks, CheckResult{Name: name, OK: ok, Message: msg})
		if !ok {
			resp.Status = "not ready"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) statsHandler(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	fn := s.stats
	s.mu.RUnlock()

	if fn == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, fn())
}

func (s *Server) uptime() string {
	return time.Since(s.startTime).Truncate(time.Second).String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.DebugCF("health", "Failed to write response", map[string]any{"error": err.Error()})
	}
}
