// Package httpapi implements the public HTTP entry point:
// POST /api/v1/evmrpc/{chain}, POST /api/v1/evmrpc_check/, GET /ping,
// GET /metrics.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/evmrpcproxy/internal/chainregistry"
	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcclient"
	"github.com/R3E-Network/evmrpcproxy/internal/healthcheck"
	"github.com/R3E-Network/evmrpcproxy/internal/logging"
	"github.com/R3E-Network/evmrpcproxy/internal/stats"
)

// Server holds the collaborators the HTTP handlers dispatch to.
type Server struct {
	Client   *evmrpcclient.Client
	Registry *chainregistry.Registry
	Checker  *healthcheck.Checker
	Stats    *stats.Aggregator
	Tokens   *TokenResolver
	Logger   *logging.Logger
	Env      string
}

// NewRouter builds the *mux.Router serving the public routes, wrapped in
// the logging and recovery middleware pair.
func NewRouter(s *Server) *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(s.Logger))
	r.Use(recoveryMiddleware(s.Logger))

	r.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/evmrpc/{chain}", s.handleEVMRPC).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/evmrpc_check/", s.handleEVMRPCCheck).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

// responseWriter wraps http.ResponseWriter to capture the status code for
// the logging middleware.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func loggingMiddleware(logger *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" {
				traceID = logging.NewTraceID()
			}
			ctx := logging.WithTraceID(r.Context(), traceID)
			r = r.WithContext(ctx)
			w.Header().Set("X-Trace-ID", traceID)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			logger.WithContext(ctx).WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   wrapped.statusCode,
				"duration": logging.FormatDuration(time.Since(start)),
			}).Info("http request")
		})
	}
}

func recoveryMiddleware(logger *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.WithContext(r.Context()).WithFields(map[string]interface{}{
						"panic":  rec,
						"path":   r.URL.Path,
						"method": r.Method,
					}).Error("panic recovered")
					writeErrorResponse(w, http.StatusInternalServerError, map[string]interface{}{
						"x_error_message": "internal server error",
						"x_http_status":   http.StatusInternalServerError,
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
