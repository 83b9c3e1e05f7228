// Package server exposes the model store over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ucmodeler/modelstore/internal/auth"
	"github.com/ucmodeler/modelstore/internal/lease"
	"github.com/ucmodeler/modelstore/internal/registry"
	"github.com/ucmodeler/modelstore/internal/transfer"
	"github.com/ucmodeler/modelstore/pkg/logging"
	"github.com/ucmodeler/modelstore/pkg/metrics"
)

// Request headers understood by the API.
const (
	HeaderAuthorization = "Authorization"
	HeaderSessionTab    = "SessionTabId"
	HeaderTestUsername  = "TestUsername"
	HeaderRequestID     = "X-Request-ID"
)

// DefaultUser is the fallback identity when authentication is disabled.
const DefaultUser = "user1"

// Server routes HTTP requests to the lease manager, registry and transfer.
type Server struct {
	leases      *lease.Manager
	registry    *registry.Registry
	transfer    *transfer.Transfer
	auth        auth.Authenticator
	metrics     *metrics.Registry
	metricsPath string
	logger      *logging.Logger
	tracing     bool
	mux         *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithAuthenticator sets how callers are identified.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

// WithMetrics serves m at /metrics and records request counts in it.
func WithMetrics(m *metrics.Registry) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsPath moves the metrics endpoint from /metrics.
func WithMetricsPath(path string) Option {
	return func(s *Server) {
		if path != "" {
			s.metricsPath = path
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithTracing wraps every route in an OpenTelemetry span.
func WithTracing(enabled bool) Option {
	return func(s *Server) { s.tracing = enabled }
}

// New creates a Server. Without WithAuthenticator every caller is treated as
// the TestUsername header or DefaultUser.
func New(leases *lease.Manager, reg *registry.Registry, xfer *transfer.Transfer, opts ...Option) *Server {
	s := &Server{
		leases:      leases,
		registry:    reg,
		transfer:    xfer,
		auth:        &auth.DisabledAuthenticator{DefaultUser: DefaultUser},
		metricsPath: "/metrics",
		logger:      logging.WithFields(map[string]any{"component": "server"}),
		mux:         http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		s.mux.Handle("GET "+s.metricsPath, s.metrics.Handler())
	}

	s.mux.Handle("GET /model", s.wrap("list", s.handleList))
	s.mux.Handle("GET /model/{id}", s.wrap("checkout", s.handleCheckout))
	s.mux.Handle("POST /model/{id}", s.wrap("create", s.handleCreate))
	s.mux.Handle("PUT /model/{id}", s.wrap("update", s.handleUpdate))
	s.mux.Handle("DELETE /model/{id}", s.wrap("delete", s.handleDelete))
	s.mux.Handle("GET /model/return", s.wrap("return", s.handleReturnAll))
	s.mux.Handle("PUT /model/return/{id}", s.wrap("release", s.handleRelease))
	s.mux.Handle("GET /model/export/{id}", s.wrap("export", s.handleExport))
	s.mux.Handle("POST /model/import/{filename}", s.wrap("import", s.handleImport))
	s.mux.Handle("GET /model/idealFunctionalities", s.wrap("ideal_functionalities", s.handleIdealFunctionalities))
	s.mux.Handle("GET /model/idealFunctionalities/{id}/messages", s.wrap("ideal_functionality_messages", s.handleIdealFunctionalityMessages))
	s.mux.Handle("GET /model/compInterfaces", s.wrap("comp_interfaces", s.handleCompInterfaces))
	s.mux.Handle("GET /model/compInterfaces/{id}/messages", s.wrap("comp_interface_messages", s.handleCompInterfaceMessages))
}

type identityKey struct{}

func identityFrom(ctx context.Context) auth.Identity {
	id, _ := ctx.Value(identityKey{}).(auth.Identity)
	return id
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// wrap authenticates the caller, runs fn and renders any error it returns.
func (s *Server) wrap(operation string, fn handlerFunc) http.Handler {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		logger := logging.FromContext(r.Context()).WithFields(map[string]any{"op": operation})
		defer func() {
			s.metrics.RecordHTTPRequest(r.Method, rec.status)
			logger.Debug("request complete", map[string]any{
				"status":     rec.status,
				"elapsed_ms": time.Since(start).Milliseconds(),
			})
		}()

		id, err := s.auth.Authenticate(r.Context(), r.Header.Get(HeaderAuthorization), r.Header.Get(HeaderTestUsername))
		if err != nil {
			logger.Warn("authentication failed", map[string]any{"status": string(auth.StatusOf(err))})
			writeError(rec, err)
			return
		}
		logger = logger.WithFields(map[string]any{"user": id.Username})
		ctx := context.WithValue(r.Context(), identityKey{}, id)
		ctx = logging.NewContext(ctx, logger)

		if err := fn(rec, r.WithContext(ctx)); err != nil {
			if statusFor(err) >= http.StatusInternalServerError {
				logger.ErrorErr("request failed", err)
			} else {
				logger.Debug("request rejected", map[string]any{"error": err.Error()})
			}
			writeError(rec, err)
		}
	})

	if !s.tracing {
		return handler
	}
	return otelhttp.NewHandler(handler, "modelstore.http."+operation)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, reqID)
		logger := s.logger.WithFields(map[string]any{
			"req_id": reqID,
			"method": r.Method,
			"path":   r.URL.Path,
		})
		next.ServeHTTP(w, r.WithContext(logging.NewContext(r.Context(), logger)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
