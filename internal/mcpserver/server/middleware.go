package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlationId"
	sessionKey       contextKey = "session"
)

// CorrelationMiddleware reads X-Correlation-ID header and adds it to context
// Generates a new correlation ID if client doesn't provide one
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		// Echo back for client verification
		w.Header().Set("X-Correlation-ID", correlationID)

		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)

		// Every log line for this request, including tool handlers, carries the id
		logger := log.With().Str("correlation_id", correlationID).Logger()
		ctx = logger.WithContext(ctx)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCorrelationID retrieves the correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey).(string); ok {
		return correlationID
	}
	return ""
}

// originMiddleware rejects requests whose Origin is not allowlisted
// (DNS rebinding protection). An empty allowlist accepts every origin.
func originMiddleware(allowed []string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(set) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if _, ok := set[origin]; !ok {
				log.Ctx(r.Context()).Warn().
					Str("origin", origin).
					Strs("allowedOrigins", allowed).
					Msg("Origin not in allowlist")
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// sessionMiddleware attaches the caller's session to the context when the
// session header names a live one. Unknown ids pass through untouched; the
// handlers decide how to reject them.
func sessionMiddleware(mgr *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sessionID := r.Header.Get(SessionHeader); sessionID != "" {
				if session, err := mgr.GetSession(sessionID); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), sessionKey, session))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sessionFromContext returns the session resolved by sessionMiddleware
func sessionFromContext(ctx context.Context) (*MCPSession, bool) {
	session, ok := ctx.Value(sessionKey).(*MCPSession)
	return session, ok
}
