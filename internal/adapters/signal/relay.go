package signal

import (
	"encoding/json"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

// relayMessage is the wire form of a relayed offer, answer or candidate.
// Candidates travel as raw JSON and are never decoded.
type relayMessage struct {
	Type      domain.SignalKind `json:"type"`
	Session   domain.SessionID  `json:"session"`
	Role      domain.Role       `json:"role,omitempty"`
	SDP       string            `json:"sdp,omitempty"`
	Candidate json.RawMessage   `json:"candidate,omitempty"`
}

func (ctl *SignalWSController) handleDescription(
	conn *WsSignalConn,
	kind domain.SignalKind,
	data []byte,
) {
	var p relayMessage
	if err := json.Unmarshal(data, &p); err != nil || p.Session == "" {
		ctl.sendError(conn, string(kind), ErrBadPayload)
		return
	}
	err := ctl.Orch.Submit(conn.uid, domain.Envelope{
		SessionID: p.Session,
		Kind:      kind,
		Role:      p.Role,
		Payload:   p.SDP,
	})
	if err != nil {
		ctl.sendError(conn, string(kind), err)
	}
}

func (ctl *SignalWSController) handleCandidate(
	conn *WsSignalConn,
	data []byte,
) {
	var p relayMessage
	if err := json.Unmarshal(data, &p); err != nil || p.Session == "" || len(p.Candidate) == 0 {
		ctl.sendError(conn, "candidate", ErrBadPayload)
		return
	}
	if err := ctl.Orch.SubmitIceCandidate(conn.uid, p.Session, p.Role, string(p.Candidate)); err != nil {
		ctl.sendError(conn, "candidate", err)
	}
}

// attach subscribes conn to the inbound stream of sid and pumps it to the
// socket until the relay closes the stream.
func (ctl *SignalWSController) attach(conn *WsSignalConn, sid domain.SessionID) {
	ch, role, err := ctl.Orch.Attach(conn.uid, sid)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(conn.uid)).Str("session", string(sid)).Msg("attach failed")
		return
	}
	log.Debug().Str("module", "signal").Str("user", string(conn.uid)).Str("session", string(sid)).Str("role", string(role)).Msg("attached")
	go ctl.forward(conn, ch)
}

func (ctl *SignalWSController) forward(conn *WsSignalConn, ch <-chan domain.Envelope) {
	for env := range ch {
		ctl.sendJSON(conn, toWire(env))
	}
}

func toWire(env domain.Envelope) relayMessage {
	msg := relayMessage{Type: env.Kind, Session: env.SessionID, Role: env.Role}
	if env.Kind != domain.SignalCandidate {
		msg.SDP = env.Payload
		return msg
	}
	if json.Valid([]byte(env.Payload)) {
		msg.Candidate = json.RawMessage(env.Payload)
	} else {
		msg.Candidate, _ = json.Marshal(env.Payload)
	}
	return msg
}

// resume re-binds a reconnecting user to the session it is still part of.
func (ctl *SignalWSController) resume(conn *WsSignalConn) {
	s, ok := ctl.Orch.Lookup(conn.uid)
	if !ok {
		return
	}
	role, _ := s.RoleOf(conn.uid)
	peerID := s.Peer(conn.uid)
	peerName, _ := ctl.Orch.Presence.Lookup(peerID)
	ctl.sendJSON(conn, core.Event{
		Type:       core.EventSessionResumed,
		Session:    s.ID,
		Role:       role,
		Peer:       &domain.User{ID: peerID, DisplayName: peerName},
		ICEServers: ctl.Orch.ICEServers,
	})
	ctl.attach(conn, s.ID)
	log.Info().Str("module", "signal").Str("user", string(conn.uid)).Str("session", string(s.ID)).Msg("session resumed")
}
