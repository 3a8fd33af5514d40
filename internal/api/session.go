package api

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reveriehq/reverie/internal/models"
	"github.com/reveriehq/reverie/internal/reveal"
)

// Session is one live reveal run: an orchestrator plus its timer, tracked
// under a server-issued ID.
type Session struct {
	ID           string
	ReflectionID string
	CreatedAt    time.Time

	orch  *reveal.Orchestrator
	timer *reveal.SimpleTimer

	mu        sync.Mutex
	completed bool
}

// recordComplete is the orchestrator's onComplete callback.
func (s *Session) recordComplete() {
	s.mu.Lock()
	s.completed = true
	s.mu.Unlock()
	slog.Info("Session complete", "session_id", s.ID, "reflection_id", s.ReflectionID)
}

// recordStep is the orchestrator's onStep callback.
func (s *Session) recordStep(step models.RevealStep) {
	slog.Debug("Session step", "session_id", s.ID, "step", step.String())
}

// Completed reports whether the reveal sequence has finished.
func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// stop tears down the orchestrator and its timer.
func (s *Session) stop() {
	s.orch.Stop()
	s.timer.Stop()
}

// SessionRegistry is the in-memory table of live sessions.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Add registers a session and assigns it an ID.
func (r *SessionRegistry) Add(sess *Session) string {
	id := uuid.NewString()
	sess.ID = id

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	slog.Debug("SessionRegistry.Add", "session_id", id, "reflection_id", sess.ReflectionID)
	return id
}

// Get looks up a session by ID.
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Remove deletes a session from the registry and returns it for teardown.
func (r *SessionRegistry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return sess, ok
}

// Len reports the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// StopAll tears down every live session. Called on server shutdown.
func (r *SessionRegistry) StopAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.stop()
	}
	if len(sessions) > 0 {
		slog.Info("SessionRegistry.StopAll: stopped sessions", "count", len(sessions))
	}
}
