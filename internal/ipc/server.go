package ipc

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wraps an HTTP server with spine routing.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a Server that binds to the given address. A nil gatherer
// serves the default Prometheus registry.
func NewServer(h *Handler, listenAddr string, gatherer prometheus.Gatherer) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:    listenAddr,
			Handler: Routes(h, gatherer),
		},
	}
}

// Routes builds the request multiplexer.
func Routes(h *Handler, gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()

	// Health endpoint.
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Orchestration endpoints.
	mux.HandleFunc("POST /api/v1/handle", h.Handle)
	mux.HandleFunc("POST /api/v1/detect", h.Detect)

	// Audit endpoints.
	mux.HandleFunc("GET /api/v1/audit", h.ListAudit)
	mux.HandleFunc("GET /api/v1/audit/verify", h.VerifyAudit)

	// History endpoint.
	mux.HandleFunc("GET /api/v1/runs", h.ListRuns)

	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return corsMiddleware(mux)
}

// Start begins listening for HTTP connections. Blocks until the server stops.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Spine-User, X-Spine-Role, X-Spine-Tenant, X-Spine-Timezone")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
