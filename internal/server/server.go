package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwbudde/grayscalebench/internal/bench"
	"github.com/cwbudde/grayscalebench/internal/store"
)

// maxImageBytes caps uploaded image bodies.
const maxImageBytes = 64 << 20

// Server exposes a Bench over HTTP.
type Server struct {
	bench   *bench.Bench
	records store.Store
	events  *EventBroadcaster
	addr    string
	server  *http.Server

	// imageDir confines POST /api/v1/image {"path"} requests.
	imageDir string
}

// NewServer creates a server for b. records may be nil, in which case the
// records endpoint returns an empty list. Images are loaded by path only from
// inside imageDir; an empty imageDir accepts uploaded bodies only.
func NewServer(addr string, b *bench.Bench, records store.Store, imageDir string) *Server {
	s := &Server{
		bench:    b,
		records:  records,
		events:   NewEventBroadcaster(),
		addr:     addr,
		imageDir: imageDir,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/devices", s.handleDevices)
	mux.HandleFunc("/api/v1/devices/select", s.handleSelectDevice)
	mux.HandleFunc("/api/v1/image", s.handleImage)
	mux.HandleFunc("/api/v1/runs/", s.handleRun)
	mux.HandleFunc("/api/v1/score", s.handleScore)
	mux.HandleFunc("/api/v1/result.png", s.handleResultImage)
	mux.HandleFunc("/api/v1/records", s.handleRecords)
	mux.HandleFunc("/api/v1/events", s.handleEvents)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown closes event streams and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.events.Close()
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
