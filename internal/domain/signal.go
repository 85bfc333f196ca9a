package domain

type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

func (k SignalKind) Valid() bool {
	return k == SignalOffer || k == SignalAnswer || k == SignalCandidate
}

// Envelope is one handshake message. Payload is never inspected.
type Envelope struct {
	SessionID SessionID  `json:"session"`
	Kind      SignalKind `json:"kind"`
	Role      Role       `json:"role"`
	Payload   string     `json:"payload"`
}

// ProtocolState is the negotiation progress of a session.
type ProtocolState int

const (
	AwaitingOffer ProtocolState = iota
	AwaitingAnswer
	Connected
	ProtocolClosed
)

func (p ProtocolState) String() string {
	switch p {
	case AwaitingOffer:
		return "awaiting_offer"
	case AwaitingAnswer:
		return "awaiting_answer"
	case Connected:
		return "connected"
	case ProtocolClosed:
		return "closed"
	default:
		return "unknown"
	}
}
