package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/parker/internal/audit"
	"github.com/HyphaGroup/parker/internal/logger"
	"github.com/HyphaGroup/parker/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// generateRequestID creates a unique request identifier
func generateRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Deps are the parts of a running search the control surface reports on.
// Session is nil in shared mode.
type Deps struct {
	RunID       string
	Mode        string
	Ceiling     uint64
	Version     string
	Session     SearchControl
	Progress    ProgressReporter
	Store       RunStore
	Checkpoints Checkpointer
	Audit       *audit.Logger // nil disables auditing
}

// Server exposes search control tools over MCP
type Server struct {
	deps      Deps
	registry  *Registry
	limiter   *RateLimiter
	once      sync.Once
	mcpServer *mcp.Server
	handler   http.Handler
}

// NewServer creates a new control server instance
func NewServer(deps Deps) *Server {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := &Server{
		deps:     deps,
		registry: NewRegistry(),
		limiter:  DefaultRateLimiter(),
	}
	s.registerTools()
	return s
}

// Handler returns the HTTP handler serving /mcp, /health and /metrics
func (s *Server) Handler() http.Handler {
	s.once.Do(s.build)
	return s.handler
}

func (s *Server) build() {
	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "parker",
		Version: s.deps.Version,
	}, nil)
	s.registry.RegisterWithMCPServer(s.mcpServer)

	// EventStore enables SSE stream resumption
	mcpHandler := mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return s.mcpServer
	}, &mcp.StreamableHTTPOptions{
		EventStore: mcp.NewMemoryEventStore(nil),
	})

	loggingHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), logger.ContextKeyRequestID, requestID)
		ctx = context.WithValue(ctx, logger.ContextKeyRunID, s.deps.RunID)
		r = r.WithContext(ctx)

		logger.Info("HTTP %s %s from %s [request_id=%s]", r.Method, r.URL.Path, r.RemoteAddr, requestID)
		mcpHandler.ServeHTTP(w, r)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealthCheck)
	mux.Handle("/metrics", metrics.Handler())
	limited := RateLimitMiddleware(s.limiter)(loggingHandler)
	mux.Handle("/mcp", metrics.Middleware(limited))
	mux.Handle("/mcp/", metrics.Middleware(limited))
	s.handler = mux
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Control server listening on %s", addr)
		logger.Info("Health check: http://localhost%s/health", addr)
		logger.Info("Metrics: http://localhost%s/metrics", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleHealthCheck is a basic liveness check
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
