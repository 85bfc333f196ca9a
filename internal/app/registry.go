package app

import (
	"sync"
	"time"

	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry owns sessions and the user -> session directory. A user maps to at
// most one non-closed session; closed sessions stay until reaped so late
// callers can tell "closed" from "never existed".
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.Session
	byUser   map[domain.UserID]domain.SessionID
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.SessionID]*domain.Session),
		byUser:   make(map[domain.UserID]domain.SessionID),
		now:      time.Now,
	}
}

func (r *Registry) CreateSession(callerID, calleeID domain.UserID) (domain.SessionID, error) {
	if callerID == calleeID {
		return "", domain.ErrAlreadyInSession
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUser[callerID]; ok {
		return "", domain.ErrAlreadyInSession
	}
	if _, ok := r.byUser[calleeID]; ok {
		return "", domain.ErrAlreadyInSession
	}

	s := &domain.Session{
		ID:        domain.NewSessionID(),
		CallerID:  callerID,
		CalleeID:  calleeID,
		CreatedAt: r.now(),
		State:     domain.SessionNegotiating,
	}
	r.sessions[s.ID] = s
	r.byUser[callerID] = s.ID
	r.byUser[calleeID] = s.ID
	log.Info().Str("module", "app.registry").Str("session", string(s.ID)).Str("caller", string(callerID)).Str("callee", string(calleeID)).Msg("session created")
	return s.ID, nil
}

func (r *Registry) Lookup(uid domain.UserID) (domain.SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.byUser[uid]
	return sid, ok
}

// Get returns a copy of the session.
func (r *Registry) Get(sid domain.SessionID) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sid]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return *s, nil
}

// Participants resolves uid's role in sid and the peer on the other side.
func (r *Registry) Participants(sid domain.SessionID, uid domain.UserID) (domain.Role, domain.UserID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sid]
	if !ok {
		return "", "", domain.ErrSessionNotFound
	}
	if s.State == domain.SessionClosed {
		return "", "", domain.ErrSessionClosed
	}
	role, ok := s.RoleOf(uid)
	if !ok {
		return "", "", domain.ErrUserNotFound
	}
	return role, s.Peer(uid), nil
}

// MarkActive records that negotiation finished. Only Negotiating moves.
func (r *Registry) MarkActive(sid domain.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sid]
	if !ok || s.State != domain.SessionNegotiating {
		return false
	}
	s.State = domain.SessionActive
	log.Info().Str("module", "app.registry").Str("session", string(sid)).Msg("session active")
	return true
}

// Close marks sid closed and drops both directory entries. The bool is true
// only for the call that actually closed it; repeats are no-ops.
func (r *Registry) Close(sid domain.SessionID) (domain.Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sid]
	if !ok {
		return domain.Session{}, false, domain.ErrSessionNotFound
	}
	if s.State == domain.SessionClosed {
		return *s, false, nil
	}
	s.State = domain.SessionClosed
	s.ClosedAt = r.now()
	for _, uid := range []domain.UserID{s.CallerID, s.CalleeID} {
		if r.byUser[uid] == sid {
			delete(r.byUser, uid)
		}
	}
	log.Info().Str("module", "app.registry").Str("session", string(sid)).Msg("session closed")
	return *s, true, nil
}

// Reap forgets sessions closed before the cutoff.
func (r *Registry) Reap(before time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for sid, s := range r.sessions {
		if s.State == domain.SessionClosed && s.ClosedAt.Before(before) {
			delete(r.sessions, sid)
			n++
		}
	}
	if n > 0 {
		log.Debug().Str("module", "app.registry").Int("reaped", n).Msg("reaped closed sessions")
	}
	return n
}

// OpenCount counts sessions that are not closed.
func (r *Registry) OpenCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if s.State != domain.SessionClosed {
			n++
		}
	}
	return n
}
