package orch

import (
	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

// matcher runs inside the queue lock.
type matcher struct {
	o *Orchestrator
}

func (m matcher) Admit(uid domain.UserID) error {
	if _, ok := m.o.Registry.Lookup(uid); ok {
		return domain.ErrAlreadyInSession
	}
	if _, ok := m.o.Presence.Lookup(uid); !ok {
		return domain.ErrUserNotFound
	}
	return nil
}

func (m matcher) Pair(caller, callee domain.QueueEntry) (domain.SessionID, error) {
	if _, ok := m.o.Presence.Lookup(caller.UserID); !ok {
		return "", domain.ErrUserNotFound
	}
	sid, err := m.o.Registry.CreateSession(caller.UserID, callee.UserID)
	if err != nil {
		return "", err
	}
	m.o.Relay.Open(sid)
	m.o.Metrics.SessionOpened()
	return sid, nil
}

// EnterQueue parks uid or pairs it with the longest waiter, who becomes the
// caller. An empty name keeps the current display name.
func (o *Orchestrator) EnterQueue(uid domain.UserID, displayName string) (app.Outcome, error) {
	name, ok := o.Presence.Lookup(uid)
	if !ok {
		return app.Outcome{}, domain.ErrUserNotFound
	}
	if displayName != "" {
		var err error
		if name, err = o.Rename(uid, displayName); err != nil {
			return app.Outcome{}, err
		}
	}

	out, err := o.Queue.Enqueue(uid, name)
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("user", string(uid)).Msg("enter queue rejected")
		return out, err
	}
	if out.Status == app.Paired {
		o.notify(out.Peer.UserID, core.Event{
			Type:       core.EventPaired,
			Session:    out.SessionID,
			Role:       domain.RoleCaller,
			Peer:       &domain.User{ID: uid, DisplayName: name},
			ICEServers: o.ICEServers,
		})
		o.notify(uid, core.Event{
			Type:       core.EventPaired,
			Session:    out.SessionID,
			Role:       domain.RoleCallee,
			Peer:       &domain.User{ID: out.Peer.UserID, DisplayName: out.Peer.DisplayName},
			ICEServers: o.ICEServers,
		})
	}
	return out, nil
}

// LeaveQueue reports whether uid was waiting.
func (o *Orchestrator) LeaveQueue(uid domain.UserID) bool {
	return o.Queue.Dequeue(uid)
}

// Skip ends the current session and queues the initiator again. The peer
// is not requeued.
func (o *Orchestrator) Skip(uid domain.UserID) (app.Outcome, error) {
	sid, ok := o.Registry.Lookup(uid)
	if !ok {
		return app.Outcome{}, domain.ErrNotInSession
	}
	o.endSession(sid, uid, core.ReasonSkip, core.ReasonPeerLeft)
	return o.EnterQueue(uid, "")
}
