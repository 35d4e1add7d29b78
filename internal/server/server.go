// Package server is the HTTP front end: it accepts conversations, answers
// them as JSON or as a server-sent event stream, and exposes the tool
// catalog and provider health.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dotcommander/toolchat/internal/agent"
	"github.com/dotcommander/toolchat/internal/logging"
	"github.com/dotcommander/toolchat/internal/mcp"
	"github.com/dotcommander/toolchat/internal/registry"
	"github.com/dotcommander/toolchat/internal/stream"
	"github.com/dotcommander/toolchat/internal/telemetry"
)

// WelcomeMessage is returned by GET /.
const WelcomeMessage = "Welcome to the toolchat API"

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Answerer produces answers for conversations. *agent.Service implements it.
type Answerer interface {
	Answer(ctx context.Context, req agent.Request) (agent.Reply, error)
	Stream(ctx context.Context, req agent.Request) stream.Source
}

// Catalog exposes the registered tools and provider states. *mcp.Service
// implements it.
type Catalog interface {
	Tools() []registry.ToolDescriptor
	Providers() []mcp.Status
}

var (
	_ Answerer = (*agent.Service)(nil)
	_ Catalog  = (*mcp.Service)(nil)
)

// Options configures a Server.
type Options struct {
	Listen      string
	CORSOrigins []string
	Pacing      time.Duration

	Model       string
	Temperature float64
	MaxTokens   int64

	Tracer trace.Tracer
}

// Server serves the HTTP API.
type Server struct {
	opts    Options
	agent   Answerer
	catalog Catalog
	bridge  *stream.Bridge
	logger  *log.Logger
	tracer  trace.Tracer
}

// New creates a server.
func New(opts Options, answerer Answerer, catalog Catalog, logger *log.Logger) *Server {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(telemetry.Scope)
	}
	bridge := stream.NewBridge(opts.Pacing)
	bridge.ErrorText = agent.FallbackAnswer
	return &Server{
		opts:    opts,
		agent:   answerer,
		catalog: catalog,
		bridge:  bridge,
		logger:  logging.OrDiscard(logger).WithPrefix("http"),
		tracer:  tracer,
	}
}

// Handler returns the routed and wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /tools", s.handleTools)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return s.withRequestID(s.withCORS(s.withLogging(mux)))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// within grace.
func (s *Server) ListenAndServe(ctx context.Context, grace time.Duration) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.opts.Listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return err
	}
	return nil
}

type ctxKey struct{}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.allowOrigin(origin) {
			if slices.Contains(s.opts.CORSOrigins, "*") {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)
			w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) bool {
	return slices.Contains(s.opts.CORSOrigins, "*") || slices.Contains(s.opts.CORSOrigins, origin)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"request_id", RequestID(r.Context()),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "err", err)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": WelcomeMessage})
}

type toolParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
}

type toolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Provider    string          `json:"provider"`
	Signature   string          `json:"signature"`
	Parameters  []toolParameter `json:"parameters"`
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	descriptors := s.catalog.Tools()
	out := make([]toolInfo, 0, len(descriptors))
	for _, d := range descriptors {
		params := make([]toolParameter, 0)
		for _, p := range d.Parameters() {
			params = append(params, toolParameter(p))
		}
		out = append(out, toolInfo{
			Name:        d.Name,
			Description: d.Description,
			Provider:    d.ProviderID,
			Signature:   d.Signature(),
			Parameters:  params,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	providers := s.catalog.Providers()
	status, code := "ok", http.StatusOK
	ready := 0
	for _, p := range providers {
		if p.State == mcp.StateReady {
			ready++
		}
	}
	if len(providers) > 0 && ready == 0 {
		status, code = "unavailable", http.StatusServiceUnavailable
	} else if ready < len(providers) {
		status = "degraded"
	}
	s.writeJSON(w, code, map[string]any{
		"status":    status,
		"tools":     len(s.catalog.Tools()),
		"providers": providers,
	})
}
