// Package api assembles the HTTP surface: the banner and health routes, the
// Socket.IO and WebSocket endpoints, and the optional card catalog.
package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duelhub/internal/catalog"
	"github.com/cory-johannsen/duelhub/internal/health"
)

// Banner is the body of GET /.
const Banner = "Socket.IO Game Server is running!"

// Deps are the handlers and services the router mounts. Nil members leave
// their routes unregistered.
type Deps struct {
	SocketIO   http.Handler
	WebSocket  http.Handler
	Catalog    CatalogService
	UploadsDir string
	Health     *health.Checker

	AllowedOrigins []string
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// NewRouter builds the full HTTP handler, CORS included.
//
// Precondition: deps.Logger must be non-nil.
func NewRouter(deps Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(requestLogger(deps.Logger))

	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, Banner)
	}).Methods(http.MethodGet)

	r.HandleFunc("/health", healthHandler(deps.Health)).Methods(http.MethodGet)

	if deps.SocketIO != nil {
		r.PathPrefix("/socket.io/").Handler(deps.SocketIO)
	}
	if deps.WebSocket != nil {
		r.Handle("/ws", deps.WebSocket).Methods(http.MethodGet)
	}
	if deps.Catalog != nil {
		registerCatalogRoutes(r, deps.Catalog, deps.MaxUploadBytes, deps.Logger)
	}
	if deps.UploadsDir != "" {
		r.PathPrefix(catalog.UploadsPath).Handler(
			http.StripPrefix(catalog.UploadsPath, http.FileServer(http.Dir(deps.UploadsDir))),
		).Methods(http.MethodGet, http.MethodHead)
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return skipBrowserWarning(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "ngrok-skip-browser-warning"},
	}).Handler(r))
}

func healthHandler(checker *health.Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		report := health.Report{Status: health.StatusOK, Services: map[string]bool{}}
		if checker != nil {
			report = checker.Report()
		}
		status := http.StatusOK
		if report.Status != health.StatusOK {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

// skipBrowserWarning sets the header that keeps ngrok tunnels from
// interposing their browser warning page.
func skipBrowserWarning(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ngrok-skip-browser-warning", "true")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack is asserted directly by the WebSocket upgraders.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func requestLogger(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
