package server

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const cleanupInterval = 5 * time.Minute

// ErrSessionNotFound is returned for unknown or expired session ids
var ErrSessionNotFound = errors.New("session not found")

// MCPSession represents an active MCP client connection
type MCPSession struct {
	ID        string
	CreatedAt time.Time
	LastSeen  time.Time
}

// SessionManager manages MCP sessions
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*MCPSession // sessionID -> session
	ttl      time.Duration
	now      func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

// NewSessionManager creates a new session manager and starts its expiry sweep.
// Call Close to stop the sweep.
func NewSessionManager(ttl time.Duration) *SessionManager {
	return newSessionManager(ttl, time.Now)
}

func newSessionManager(ttl time.Duration, now func() time.Time) *SessionManager {
	mgr := &SessionManager{
		sessions: make(map[string]*MCPSession),
		ttl:      ttl,
		now:      now,
		stop:     make(chan struct{}),
	}

	go mgr.cleanupExpired(cleanupInterval)

	return mgr
}

// CreateSession creates a new MCP session
func (sm *SessionManager) CreateSession() *MCPSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.now()
	session := &MCPSession{
		ID:        uuid.New().String(),
		CreatedAt: now,
		LastSeen:  now,
	}

	sm.sessions[session.ID] = session

	log.Debug().
		Str("sessionId", session.ID).
		Msg("Created MCP session")

	return session
}

// GetSession retrieves a session by ID. Expired sessions are not returned
// even if the sweep has not removed them yet.
func (sm *SessionManager) GetSession(sessionID string) (*MCPSession, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	if !exists || sm.expired(session, sm.now()) {
		return nil, errors.Wrapf(ErrSessionNotFound, "id %s", sessionID)
	}

	copied := *session
	return &copied, nil
}

// UpdateLastSeen updates the last seen time for a session
func (sm *SessionManager) UpdateLastSeen(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if session, exists := sm.sessions[sessionID]; exists {
		session.LastSeen = sm.now()
	}
}

// DeleteSession removes a session and reports whether it existed
func (sm *SessionManager) DeleteSession(sessionID string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	_, exists := sm.sessions[sessionID]
	delete(sm.sessions, sessionID)

	if exists {
		log.Debug().
			Str("sessionId", sessionID).
			Msg("Deleted MCP session")
	}
	return exists
}

// Len returns the number of tracked sessions, expired or not
func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Close stops the expiry sweep. It is safe to call more than once.
func (sm *SessionManager) Close() {
	sm.closeOnce.Do(func() {
		close(sm.stop)
	})
}

func (sm *SessionManager) expired(session *MCPSession, now time.Time) bool {
	return now.Sub(session.LastSeen) > sm.ttl
}

// sweep removes expired sessions and returns how many it removed
func (sm *SessionManager) sweep() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.now()
	expired := 0
	for id, session := range sm.sessions {
		if sm.expired(session, now) {
			delete(sm.sessions, id)
			expired++
		}
	}
	return expired
}

// cleanupExpired removes expired sessions until Close is called
func (sm *SessionManager) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.stop:
			return
		case <-ticker.C:
			if expired := sm.sweep(); expired > 0 {
				log.Info().
					Int("count", expired).
					Msg("Cleaned up expired MCP sessions")
			}
		}
	}
}
