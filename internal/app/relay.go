package app

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

// ErrBackpressure means the recipient's mailbox is full. The message's
// protocol effect is kept; only live delivery failed.
var ErrBackpressure = errors.New("backpressure")

type mailbox struct {
	ch       chan domain.Envelope
	attached bool
}

// relaySession holds the handshake state of one session. Mailboxes are only
// written under mu so each direction stays FIFO.
type relaySession struct {
	mu     sync.Mutex
	state  domain.ProtocolState
	offer  *domain.Envelope
	answer *domain.Envelope
	boxes  map[domain.Role]*mailbox
}

// Relay routes offer/answer/candidate messages between the two roles of a
// session and enforces the negotiation order.
type Relay struct {
	size int
	now  func() time.Time

	mu         sync.RWMutex
	sessions   map[domain.SessionID]*relaySession
	tombstones map[domain.SessionID]time.Time
}

func NewRelay(mailboxSize int) *Relay {
	if mailboxSize <= 0 {
		mailboxSize = 64
	}
	return &Relay{
		size:       mailboxSize,
		now:        time.Now,
		sessions:   make(map[domain.SessionID]*relaySession),
		tombstones: make(map[domain.SessionID]time.Time),
	}
}

// Open starts negotiation for sid. Opening twice is a no-op.
func (r *Relay) Open(sid domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; ok {
		return
	}
	r.sessions[sid] = &relaySession{
		state: domain.AwaitingOffer,
		boxes: map[domain.Role]*mailbox{
			domain.RoleCaller: {ch: make(chan domain.Envelope, r.size)},
			domain.RoleCallee: {ch: make(chan domain.Envelope, r.size)},
		},
	}
}

func (r *Relay) get(sid domain.SessionID) (*relaySession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rs, ok := r.sessions[sid]; ok {
		return rs, nil
	}
	if _, ok := r.tombstones[sid]; ok {
		return nil, domain.ErrSessionClosed
	}
	return nil, domain.ErrSessionNotFound
}

// Submit applies msg sent by the participant holding role from and forwards
// it to the other participant. It returns the resulting protocol state.
func (r *Relay) Submit(sid domain.SessionID, from domain.Role, msg domain.Envelope) (domain.ProtocolState, error) {
	rs, err := r.get(sid)
	if err != nil {
		return domain.ProtocolClosed, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.state == domain.ProtocolClosed {
		return rs.state, domain.ErrSessionClosed
	}
	if msg.Role != "" && msg.Role != from {
		return rs.state, domain.ErrRoleMismatch
	}
	msg.SessionID = sid
	msg.Role = from

	switch msg.Kind {
	case domain.SignalOffer:
		if from != domain.RoleCaller || rs.state != domain.AwaitingOffer {
			return rs.state, domain.ErrUnexpectedMessage
		}
		rs.offer = &msg
		rs.state = domain.AwaitingAnswer
	case domain.SignalAnswer:
		if from != domain.RoleCallee || rs.state != domain.AwaitingAnswer {
			return rs.state, domain.ErrUnexpectedMessage
		}
		rs.answer = &msg
		rs.state = domain.Connected
	case domain.SignalCandidate:
	default:
		return rs.state, domain.ErrUnexpectedMessage
	}

	log.Debug().Str("module", "app.relay").Str("session", string(sid)).Str("role", string(from)).Str("kind", string(msg.Kind)).Str("state", rs.state.String()).Msg("signal")

	box := rs.boxes[from.Opposite()]
	select {
	case box.ch <- msg:
		return rs.state, nil
	default:
		return rs.state, ErrBackpressure
	}
}

// Attach returns the inbound channel of role. The first attach gets the
// mailbox buffered since Open. A later attach (reconnect) closes the old
// channel and starts a new one primed with the latest offer (callee) or
// answer (caller); candidates are not replayed.
func (r *Relay) Attach(sid domain.SessionID, role domain.Role) (<-chan domain.Envelope, error) {
	if !role.Valid() {
		return nil, domain.ErrRoleMismatch
	}
	rs, err := r.get(sid)
	if err != nil {
		return nil, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.state == domain.ProtocolClosed {
		return nil, domain.ErrSessionClosed
	}

	box := rs.boxes[role]
	if !box.attached {
		box.attached = true
		return box.ch, nil
	}

	close(box.ch)
	box.ch = make(chan domain.Envelope, r.size)
	switch {
	case role == domain.RoleCallee && rs.offer != nil:
		box.ch <- *rs.offer
	case role == domain.RoleCaller && rs.answer != nil:
		box.ch <- *rs.answer
	}
	log.Info().Str("module", "app.relay").Str("session", string(sid)).Str("role", string(role)).Msg("re-attached")
	return box.ch, nil
}

func (r *Relay) State(sid domain.SessionID) domain.ProtocolState {
	rs, err := r.get(sid)
	if err != nil {
		return domain.ProtocolClosed
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.state
}

// Close ends negotiation, closes both mailboxes and leaves a tombstone so
// late messages get ErrSessionClosed. Idempotent.
func (r *Relay) Close(sid domain.SessionID) {
	r.mu.Lock()
	rs, ok := r.sessions[sid]
	if ok {
		delete(r.sessions, sid)
	}
	if _, dead := r.tombstones[sid]; !dead {
		r.tombstones[sid] = r.now()
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.state = domain.ProtocolClosed
	for _, box := range rs.boxes {
		close(box.ch)
	}
	log.Debug().Str("module", "app.relay").Str("session", string(sid)).Msg("relay closed")
}

// Reap drops tombstones older than the cutoff.
func (r *Relay) Reap(before time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for sid, at := range r.tombstones {
		if at.Before(before) {
			delete(r.tombstones, sid)
			n++
		}
	}
	return n
}
