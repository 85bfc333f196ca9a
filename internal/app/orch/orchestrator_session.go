package orch

import (
	"errors"

	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) SubmitOffer(uid domain.UserID, sid domain.SessionID, sdp string) error {
	return o.Submit(uid, domain.Envelope{SessionID: sid, Kind: domain.SignalOffer, Payload: sdp})
}

func (o *Orchestrator) SubmitAnswer(uid domain.UserID, sid domain.SessionID, sdp string) error {
	return o.Submit(uid, domain.Envelope{SessionID: sid, Kind: domain.SignalAnswer, Payload: sdp})
}

func (o *Orchestrator) SubmitIceCandidate(uid domain.UserID, sid domain.SessionID, role domain.Role, candidate string) error {
	return o.Submit(uid, domain.Envelope{SessionID: sid, Kind: domain.SignalCandidate, Role: role, Payload: candidate})
}

// Submit relays msg from uid to the other participant of msg.SessionID.
// A set msg.Role must match uid's actual role.
func (o *Orchestrator) Submit(uid domain.UserID, msg domain.Envelope) error {
	sid := msg.SessionID
	role, _, err := o.Registry.Participants(sid, uid)
	if err != nil {
		o.Metrics.Signal(string(msg.Kind), domain.Code(err))
		return err
	}

	state, err := o.Relay.Submit(sid, role, msg)
	switch {
	case errors.Is(err, app.ErrBackpressure):
		o.Metrics.Signal(string(msg.Kind), "backpressure")
		o.onBackpressure(sid, msg)
	case err != nil:
		o.Metrics.Signal(string(msg.Kind), domain.Code(err))
		log.Debug().Err(err).Str("module", "orch").Str("user", string(uid)).Str("session", string(sid)).Str("kind", string(msg.Kind)).Msg("signal rejected")
		return err
	default:
		o.Metrics.Signal(string(msg.Kind), "ok")
	}

	if msg.Kind == domain.SignalAnswer && state == domain.Connected {
		o.Registry.MarkActive(sid)
	}
	return nil
}

func (o *Orchestrator) onBackpressure(sid domain.SessionID, msg domain.Envelope) {
	if o.Policy == nil {
		return
	}
	switch o.Policy.OnBackPressure(sid, msg) {
	case app.EndSession:
		log.Warn().Str("module", "orch").Str("session", string(sid)).Str("kind", string(msg.Kind)).Msg("peer mailbox full, ending session")
		o.endSession(sid, "", core.ReasonBackpressure, core.ReasonBackpressure)
	case app.DropMessage:
		log.Debug().Str("module", "orch").Str("session", string(sid)).Str("kind", string(msg.Kind)).Msg("peer mailbox full, dropped")
	case app.NoAction:
	}
}

// Attach hands uid the inbound signaling stream of its session. Calling it
// again (after a reconnect) replaces the previous stream.
func (o *Orchestrator) Attach(uid domain.UserID, sid domain.SessionID) (<-chan domain.Envelope, domain.Role, error) {
	role, _, err := o.Registry.Participants(sid, uid)
	if err != nil {
		return nil, "", err
	}
	ch, err := o.Relay.Attach(sid, role)
	if err != nil {
		return nil, "", err
	}
	return ch, role, nil
}

// HangUp ends uid's session.
func (o *Orchestrator) HangUp(uid domain.UserID) error {
	sid, ok := o.Registry.Lookup(uid)
	if !ok {
		return domain.ErrNotInSession
	}
	o.endSession(sid, uid, core.ReasonHangUp, core.ReasonPeerLeft)
	return nil
}

// endSession closes sid once. initiator gets own as the reason, the other
// participant gets peer.
func (o *Orchestrator) endSession(sid domain.SessionID, initiator domain.UserID, own, peer string) {
	s, closed, err := o.Registry.Close(sid)
	if err != nil || !closed {
		return
	}
	o.Relay.Close(sid)
	o.Metrics.SessionClosed(own)
	log.Info().Str("module", "orch").Str("session", string(sid)).Str("by", string(initiator)).Str("reason", own).Msg("session ended")

	for _, uid := range []domain.UserID{s.CallerID, s.CalleeID} {
		reason := peer
		if uid == initiator {
			reason = own
		}
		o.notify(uid, core.Event{Type: core.EventSessionEnded, Session: sid, Reason: reason})
	}
}
