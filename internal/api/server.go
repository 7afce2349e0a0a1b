// File: internal/api/server.go
// ============================================
package api

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"paper-trading-bot/internal/engine"
	"paper-trading-bot/internal/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server exposes the engine control surface over HTTP.
type Server struct {
	host           *engine.Host
	log            *zap.Logger
	base           context.Context
	streamInterval time.Duration
}

// NewServer wires handlers to host. base bounds long-running work started by
// a request, such as a start whose backfill outlives the client.
func NewServer(base context.Context, host *engine.Host, log *zap.Logger) *Server {
	return &Server{
		host:           host,
		log:            logger.OrNop(log).Named("api"),
		base:           base,
		streamInterval: time.Second,
	}
}

// Routes builds the router:
//
//	POST /api/agent/control
//	GET  /api/agent/state
//	GET  /api/agent/stream   (server-sent events)
//	GET  /metrics
//	GET  /health
func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.recovery)
	router.Use(s.logging)

	agent := router.PathPrefix("/api/agent").Subrouter()
	agent.HandleFunc("/control", s.Control).Methods(http.MethodPost)
	agent.HandleFunc("/state", s.State).Methods(http.MethodGet)
	agent.HandleFunc("/stream", s.Stream).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return router
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Flush keeps server-sent events working through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
			zap.Int64("bytes", wrapped.written))
	})
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error("handler panic",
					zap.Any("panic", err),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()))
				writeError(w, http.StatusInternalServerError, "internal_error", "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
