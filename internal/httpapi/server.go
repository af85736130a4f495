// Package httpapi exposes a trimmed, read-only status surface over the
// persisted run and monitor records: a caller can poll a backtest's
// progress or a monitor's latest snapshot without holding a direct
// reference to the process that produced them. The interactive web UI
// this would ultimately back is out of scope; only its read surface is
// implemented.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/atlas-desktop/backtester/internal/ports"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Server is the HTTP status server: gorilla/mux routing, rs/cors
// wrapping, same shape as the teacher's API server minus its WebSocket
// hub and mutable backtest-state map (state lives in the repos, not in
// server memory, so there is nothing here to broadcast).
type Server struct {
	logger     *zap.Logger
	host       string
	port       int
	router     *mux.Router
	httpServer *http.Server

	runRepo     ports.RunRepo
	monitorRepo ports.MonitorRepo
	strategies  ports.StrategyFactory
}

// NewServer builds the router and registers every read-only route.
func NewServer(logger *zap.Logger, host string, port int, runRepo ports.RunRepo, monitorRepo ports.MonitorRepo, strategies ports.StrategyFactory) *Server {
	s := &Server{
		logger:      logger,
		host:        host,
		port:        port,
		router:      mux.NewRouter(),
		runRepo:     runRepo,
		monitorRepo: monitorRepo,
		strategies:  strategies,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/strategies", s.handleListStrategies).Methods("GET")
	s.router.HandleFunc("/api/v1/runs/{id}", s.handleGetRun).Methods("GET")
	s.router.HandleFunc("/api/v1/monitors/{id}", s.handleGetMonitor).Methods("GET")
	s.router.HandleFunc("/api/v1/monitors/{id}/snapshots", s.handleGetMonitorSnapshots).Methods("GET")
	s.router.HandleFunc("/api/v1/monitors/{id}/trades", s.handleGetMonitorTrades).Methods("GET")
}

// Router exposes the underlying mux.Router directly for tests that want
// to exercise routing without binding a real listener.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start blocks serving HTTP until the listener errors or is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.logger.Info("starting status API server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "time": time.Now().Unix()})
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	names := s.strategies.ListStrategies()
	descriptors := make([]any, 0, len(names))
	for _, name := range names {
		if d, ok := s.strategies.Describe(name); ok {
			descriptors = append(descriptors, d)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"strategies": descriptors})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := s.runRepo.Get(id)
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	mon, err := s.monitorRepo.Get(id)
	if err != nil {
		http.Error(w, "monitor not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, mon)
}

func (s *Server) handleGetMonitorSnapshots(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	n := 30
	if q := r.URL.Query().Get("n"); q != "" {
		if parsed, err := parsePositiveInt(q); err == nil {
			n = parsed
		}
	}
	snapshots, err := s.monitorRepo.GetSnapshots(id, n)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"monitorId": id, "snapshots": snapshots, "count": len(snapshots)})
}

func (s *Server) handleGetMonitorTrades(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	trades, err := s.monitorRepo.GetTrades(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"monitorId": id, "trades": trades, "count": len(trades)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func parsePositiveInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("httpapi: invalid positive integer %q", s)
	}
	return n, nil
}
