package view

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/wellness-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// One controller per open dashboard. Sessions idle for longer than the idle
// timeout are closed by Sweep.
// ══════════════════════════════════════════════════════════════════════════════

// ControllerFactory builds the controller of a new session.
type ControllerFactory func(sessionID string, actor intervention.Actor) *Controller

// SessionsConfig configures Sessions.
type SessionsConfig struct {
	IdleTimeout time.Duration
	MaxSessions int
	Clock       func() time.Time
}

// DefaultSessionsConfig returns the defaults used by the dashboard.
func DefaultSessionsConfig() SessionsConfig {
	return SessionsConfig{
		IdleTimeout: 30 * time.Minute,
		MaxSessions: 500,
	}
}

type session struct {
	ctrl     *Controller
	actor    intervention.Actor
	opened   time.Time
	lastSeen time.Time
}

// SessionInfo describes an open session.
type SessionInfo struct {
	ID       string             `json:"id"`
	Actor    intervention.Actor `json:"actor"`
	Opened   time.Time          `json:"opened"`
	LastSeen time.Time          `json:"last_seen"`
}

// Sessions keeps the open controllers.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*session
	factory  ControllerFactory
	cfg      SessionsConfig
	log      *logger.Logger
}

// NewSessions creates an empty registry.
func NewSessions(cfg SessionsConfig, factory ControllerFactory, log *logger.Logger) *Sessions {
	def := DefaultSessionsConfig()
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Sessions{
		sessions: make(map[string]*session),
		factory:  factory,
		cfg:      cfg,
		log:      log.With(logger.Component("sessions")),
	}
}

// Open starts a session for actor. When the registry is full the least
// recently used session is closed to make room.
func (s *Sessions) Open(actor intervention.Actor) (string, *Controller, error) {
	if actor.IsZero() {
		return "", nil, shared.WrapError("view", "OpenSession", shared.ErrInvalidInput, "actor is required", intervention.ErrMissingActor)
	}

	id := uuid.NewString()
	ctrl := s.factory(id, actor)
	now := s.cfg.Clock()

	s.mu.Lock()
	if len(s.sessions) >= s.cfg.MaxSessions {
		s.evictOldestLocked()
	}
	s.sessions[id] = &session{ctrl: ctrl, actor: actor, opened: now, lastSeen: now}
	s.mu.Unlock()

	metrics.SessionOpened()
	s.log.Info("session opened", logger.SessionID(id), logger.ActorName(actor.Name))
	return id, ctrl, nil
}

// Get returns the controller of an open session and marks it as used.
func (s *Sessions) Get(id string) (*Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, shared.NewDomainError("view", "GetSession", shared.ErrNotFound, "session "+id+" not found")
	}
	sess.lastSeen = s.cfg.Clock()
	return sess.ctrl, nil
}

// Info describes an open session without touching it.
func (s *Sessions) Info(id string) (SessionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return SessionInfo{}, false
	}
	return SessionInfo{ID: id, Actor: sess.actor, Opened: sess.opened, LastSeen: sess.lastSeen}, true
}

// Close ends a session.
func (s *Sessions) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return shared.NewDomainError("view", "CloseSession", shared.ErrNotFound, "session "+id+" not found")
	}
	s.closeSession(id, sess, "closed")
	return nil
}

// Len returns the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep closes every session idle for longer than the idle timeout and
// returns how many were closed.
func (s *Sessions) Sweep() int {
	cutoff := s.cfg.Clock().Add(-s.cfg.IdleTimeout)

	s.mu.Lock()
	expired := make(map[string]*session)
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			expired[id] = sess
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for id, sess := range expired {
		s.closeSession(id, sess, "idle")
	}
	return len(expired)
}

// Run sweeps on every tick until ctx is done, then closes all sessions.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.CloseAll()
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Debug("idle sessions swept", logger.Int("count", n))
			}
		}
	}
}

// CloseAll ends every session.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for id, sess := range all {
		s.closeSession(id, sess, "shutdown")
	}
}

func (s *Sessions) evictOldestLocked() {
	var oldestID string
	var oldest *session
	for id, sess := range s.sessions {
		if oldest == nil || sess.lastSeen.Before(oldest.lastSeen) {
			oldestID, oldest = id, sess
		}
	}
	if oldest == nil {
		return
	}
	delete(s.sessions, oldestID)
	s.closeSession(oldestID, oldest, "evicted")
}

func (s *Sessions) closeSession(id string, sess *session, reason string) {
	sess.ctrl.Close()
	metrics.SessionClosed()
	s.log.Info("session closed", logger.SessionID(id), logger.String("reason", reason))
}
