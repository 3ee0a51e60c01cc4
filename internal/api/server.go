package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"skyroute/internal/conflict"
	"skyroute/internal/models"
	"skyroute/internal/route"
	"skyroute/internal/tasks"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/julienschmidt/httprouter"
)

// DefaultRouteCacheSize is the number of optimized routes kept in memory
const DefaultRouteCacheSize = 256

// FlightView exposes the latest monitoring cycle
type FlightView interface {
	Latest() tasks.Snapshot
}

// TrafficView exposes detector state
type TrafficView interface {
	Statistics() conflict.Statistics
	Zones() []models.RestrictedZone
}

// AlertStore reads persisted alerts
type AlertStore interface {
	Recent(limit int) ([]models.Alert, error)
}

// Config holds HTTP server settings
type Config struct {
	Addr           string
	RouteCacheSize int
	Critical       route.CriticalThresholds
}

// Deps are the collaborators the handlers read from. Flights, Traffic, Alerts and Hub
// may be nil; the matching endpoints then answer 503.
type Deps struct {
	Optimizer *route.Optimizer
	Flights   FlightView
	Traffic   TrafficView
	Alerts    AlertStore
	Hub       *Hub
}

// Server is the JSON HTTP boundary
type Server struct {
	router    *httprouter.Router
	http      *http.Server
	optimizer *route.Optimizer
	critical  route.CriticalThresholds
	cache     *lru.Cache[string, routeResponse]
	flights   FlightView
	traffic   TrafficView
	alerts    AlertStore
	hub       *Hub
}

// New builds the server and registers its routes
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Optimizer == nil {
		return nil, errors.New("route optimizer is required")
	}

	size := cfg.RouteCacheSize
	if size <= 0 {
		size = DefaultRouteCacheSize
	}
	cache, err := lru.New[string, routeResponse](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create route cache: %w", err)
	}

	s := &Server{
		router:    httprouter.New(),
		optimizer: deps.Optimizer,
		critical:  cfg.Critical,
		cache:     cache,
		flights:   deps.Flights,
		traffic:   deps.Traffic,
		alerts:    deps.Alerts,
		hub:       deps.Hub,
	}
	s.routes()

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() {
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/api/optimize-route", s.handleOptimizeRoute)
	s.router.GET("/api/flights", s.handleFlights)
	s.router.GET("/api/statistics", s.handleStatistics)
	s.router.GET("/api/alerts", s.handleAlerts)
	s.router.GET("/api/zones", s.handleZones)
	s.router.GET("/api/events", s.handleEvents)

	s.router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v interface{}) {
		slog.Error("Panic in HTTP handler", "path", r.URL.Path, "panic", v)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Handler returns the root handler with request logging
func (s *Server) Handler() http.Handler {
	return logRequests(s.router)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	slog.Info("HTTP server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps event streams working through the wrapper
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
