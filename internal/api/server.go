// Package api exposes the question answering service over HTTP. Every
// endpoint answers in the {status, message, data} envelope: business failures
// keep HTTP 200 and carry their stable code in status, transport failures use
// conventional HTTP status codes.
package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resourceburglar/localqa/internal/config"
	"github.com/resourceburglar/localqa/internal/ingest"
	"github.com/resourceburglar/localqa/internal/log"
)

// ServerConfig carries the dependencies of the API server.
type ServerConfig struct {
	Logger     log.Logger
	Config     *config.Config  // Required: chunking defaults for uploads
	Asker      Asker           // Required
	Ingest     *ingest.Service // Required
	Namespaces NamespaceStore  // Required
	History    HistoryAPI      // Required
	Pool       *pgxpool.Pool   // Optional: nil degrades /ready to liveness
	TrustProxy bool            // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst  int             // Per-IP rate limit burst (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer wires all routes and the middleware stack.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Asker == nil {
		return nil, errors.New("asker is required")
	}
	if cfg.Ingest == nil {
		return nil, errors.New("ingest service is required")
	}
	if cfg.Namespaces == nil {
		return nil, errors.New("namespace store is required")
	}
	if cfg.History == nil {
		return nil, errors.New("history store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	kh := &knowledgeHandler{
		ingest:     cfg.Ingest,
		namespaces: cfg.Namespaces,
		cfg:        cfg.Config,
		logger:     logger,
	}
	ch := &chatHandler{
		asker:   cfg.Asker,
		history: cfg.History,
		logger:  logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /knowledge-base/upload", kh.upload)
	mux.HandleFunc("DELETE /knowledge-base/vectors", kh.deleteVectors)
	mux.HandleFunc("DELETE /knowledge-base/files/{id}", kh.deleteFile)
	mux.HandleFunc("POST /namespace", kh.createNamespace)
	mux.HandleFunc("GET /namespace", kh.listNamespaces)

	mux.HandleFunc("POST /chat", ch.askOnce)
	mux.HandleFunc("POST /chat/ask", ch.ask)
	mux.HandleFunc("POST /chat/public/ask", ch.askPublic)
	mux.HandleFunc("GET /chat/history", ch.getHistory)
	mux.HandleFunc("POST /chat/feedback", ch.feedback)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery -> RequestID -> Logging -> RateLimit -> Routes
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.HandleFunc("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
