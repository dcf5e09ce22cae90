package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("admin")

// HealthFunc reports whether the server is able to serve requests
type HealthFunc func() error

// AdminServer serves the operational endpoints:
//
//	GET /metrics  prometheus text format
//	GET /healthz  200 "ok" or 503 with the health error
type AdminServer struct {
	set    *metrics.Set
	health HealthFunc
	srv    *http.Server
	addr   net.Addr
}

// NewAdminServer creates an admin server exposing set and the process metrics.
// health may be nil, in which case /healthz always answers ok.
func NewAdminServer(set *metrics.Set, health HealthFunc, logRequests bool) *AdminServer {
	a := &AdminServer{set: set, health: health}

	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		if logRequests {
			h = loggerMiddleware(h)
		}
		mux.HandleFunc(pattern, h)
	}
	handle("GET /metrics", a.handleMetrics)
	handle("GET /healthz", a.handleHealth)

	a.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a
}

// Start listens on endpoint and serves in the background
func (a *AdminServer) Start(endpoint string) error {
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", endpoint, err)
	}
	a.addr = listener.Addr()

	Logger.Infof("Starting admin server on %s", a.addr)
	go func() {
		if err := a.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Admin server stopped: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, nil before Start
func (a *AdminServer) Addr() net.Addr { return a.addr }

// Close stops the admin server
func (a *AdminServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.srv.Shutdown(ctx)
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (a *AdminServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if a.set != nil {
		a.set.WritePrometheus(w)
	}
	metrics.WriteProcessMetrics(w)
}

func (a *AdminServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	_, _ = w.Write([]byte("ok"))
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Process request
		next.ServeHTTP(rw, r)

		// Log the request
		duration := time.Since(start)
		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, duration)
	}
}
