package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionID string

func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

func (r Role) Valid() bool { return r == RoleCaller || r == RoleCallee }

// Opposite returns the role messages from r are delivered to.
func (r Role) Opposite() Role {
	if r == RoleCaller {
		return RoleCallee
	}
	return RoleCaller
}

type SessionState int

const (
	SessionNegotiating SessionState = iota
	SessionActive
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionNegotiating:
		return "negotiating"
	case SessionActive:
		return "active"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is a pairing of two users. The caller is the user who waited longer.
type Session struct {
	ID        SessionID    `json:"id"`
	CallerID  UserID       `json:"caller"`
	CalleeID  UserID       `json:"callee"`
	CreatedAt time.Time    `json:"created_at"`
	ClosedAt  time.Time    `json:"closed_at,omitzero"`
	State     SessionState `json:"state"`
}

// RoleOf reports the role uid plays in s.
func (s *Session) RoleOf(uid UserID) (Role, bool) {
	switch uid {
	case s.CallerID:
		return RoleCaller, true
	case s.CalleeID:
		return RoleCallee, true
	}
	return "", false
}

// Peer returns the other participant.
func (s *Session) Peer(uid UserID) UserID {
	if uid == s.CallerID {
		return s.CalleeID
	}
	return s.CallerID
}

// QueueEntry is a user waiting for a partner.
type QueueEntry struct {
	UserID      UserID    `json:"id"`
	DisplayName string    `json:"name"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}
