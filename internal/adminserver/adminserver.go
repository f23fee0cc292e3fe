// Package adminserver implements the optional secondary HTTP surface
// (C8) exposing Prometheus metrics and a small JSON debug-status
// endpoint. It never touches proxy traffic; grounded on
// cmd/tempo-federated-querier/main.go's gorilla/mux router setup and
// on cmd/tempo/app/server_service.go's separate internal-server
// convention.
package adminserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avdonina/cacheproxy/internal/cache"
	"github.com/avdonina/cacheproxy/internal/pool"
)

// Status is the JSON body served at /debug/status.
type Status struct {
	CacheSize     int     `json:"cache_size"`
	CacheCapacity int     `json:"cache_capacity"`
	QueueLength   int     `json:"queue_length"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Server is the admin HTTP listener.
type Server struct {
	http     *http.Server
	logger   log.Logger
	cache    *cache.Cache
	pool     *pool.Pool
	capacity int
	started  time.Time
}

// New builds an admin server bound to addr. It does not start
// listening until Run is called.
func New(addr string, c *cache.Cache, p *pool.Pool, capacity int, logger log.Logger) *Server {
	s := &Server{
		logger:   logger,
		cache:    c,
		pool:     p,
		capacity: capacity,
		started:  time.Now(),
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/debug/status", s.handleStatus)

	s.http = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	return s
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{
		CacheSize:     s.cache.Size(),
		CacheCapacity: s.capacity,
		QueueLength:   s.pool.QueueLength(),
		UptimeSeconds: time.Since(s.started).Seconds(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// Run starts serving and blocks until the server is closed, returning
// nil on a graceful http.ErrServerClosed shutdown.
func (s *Server) Run() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down the admin server.
func (s *Server) Close() error {
	return s.http.Close()
}
