// Package server hosts the dispatcher over Streamable HTTP.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/erauner12/mcptools/internal/mcpserver/config"
	"github.com/erauner12/mcptools/internal/mcpserver/jsonrpc"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// SessionHeader carries the session id issued by initialize
	SessionHeader = "Mcp-Session-Id"

	maxBodyBytes = 10 << 20
)

// Dispatcher is the part of dispatch.Dispatcher the server needs
type Dispatcher interface {
	Handle(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response
}

// MCPServer is the Streamable HTTP MCP server
type MCPServer struct {
	config     *config.Config
	dispatcher Dispatcher
	sessionMgr *SessionManager
	limiter    *RateLimiter // nil when rate limiting is disabled
	router     *chi.Mux
	httpServer *http.Server
}

// New creates a new MCP server. The session and rate-limit sweeps start
// immediately; Shutdown stops them.
func New(cfg *config.Config, dispatcher Dispatcher) (*MCPServer, error) {
	ttl, err := cfg.SessionTTLDuration()
	if err != nil {
		return nil, err
	}

	s := &MCPServer{
		config:     cfg,
		dispatcher: dispatcher,
		sessionMgr: NewSessionManager(ttl),
		router:     chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(CorrelationMiddleware)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)

	if cfg.RateLimit.RequestsPerMinute > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	}

	s.router.Route("/mcp", func(r chi.Router) {
		r.Use(originMiddleware(cfg.AllowedOrigins))
		r.Use(sessionMiddleware(s.sessionMgr))
		if s.limiter != nil {
			r.Use(rateLimitMiddleware(s.limiter))
		}
		r.Post("/", s.handleMCPPost)
		r.Delete("/", s.handleMCPDelete)
	})

	return s, nil
}

// Handler exposes the root HTTP handler
func (s *MCPServer) Handler() http.Handler { return s.router }

// Sessions exposes the session manager
func (s *MCPServer) Sessions() *SessionManager { return s.sessionMgr }

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *MCPServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// WriteTimeout is omitted so long-running tool calls are not cut off
	}

	log.Info().Str("addr", addr).Msg("Starting MCP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *MCPServer) Shutdown(ctx context.Context) error {
	s.sessionMgr.Close()
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *MCPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.sessionMgr.Len(),
	})
}

// handleMCPPost handles POST /mcp (JSON-RPC requests)
func (s *MCPServer) handleMCPPost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.sendResponse(w, jsonrpc.NewError(nil, jsonrpc.ParseError, "failed to read request body"))
		return
	}

	var req jsonrpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendResponse(w, jsonrpc.NewError(nil, jsonrpc.ParseError, "invalid JSON"))
		return
	}

	if req.JSONRPC != jsonrpc.Version {
		s.sendResponse(w, jsonrpc.NewError(req.ID, jsonrpc.InvalidRequest, "invalid jsonrpc version"))
		return
	}

	ctx := r.Context()
	logger := log.Ctx(ctx).With().Logger()

	if req.Method == "initialize" {
		session := s.sessionMgr.CreateSession()
		logger = logger.With().Str("sessionId", session.ID).Logger()
		logger.Info().Msg("Created new MCP session")
		w.Header().Set(SessionHeader, session.ID)
	} else if sessionID := r.Header.Get(SessionHeader); sessionID != "" {
		if _, err := s.sessionMgr.GetSession(sessionID); err != nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		s.sessionMgr.UpdateLastSeen(sessionID)
		logger = logger.With().Str("sessionId", sessionID).Logger()
	}

	resp := s.dispatcher.Handle(logger.WithContext(ctx), &req)

	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	s.sendResponse(w, resp)
}

// handleMCPDelete handles DELETE /mcp (close session)
func (s *MCPServer) handleMCPDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		http.Error(w, "missing session ID", http.StatusBadRequest)
		return
	}

	if !s.sessionMgr.DeleteSession(sessionID) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	zerolog.Ctx(r.Context()).Info().Str("sessionId", sessionID).Msg("Closed MCP session")
	w.WriteHeader(http.StatusNoContent)
}

// sendResponse writes a JSON-RPC response. JSON-RPC errors are still HTTP 200.
func (s *MCPServer) sendResponse(w http.ResponseWriter, resp *jsonrpc.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		err = errors.Wrap(err, "marshal response")
		log.Error().Err(err).Msg("Failed to encode JSON-RPC response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
