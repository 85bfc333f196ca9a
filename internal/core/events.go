package core

import (
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/pion/webrtc/v4"
)

type EventType string

const (
	EventPaired         EventType = "paired"
	EventSessionEnded   EventType = "session_ended"
	EventSessionResumed EventType = "session_resumed"
)

// Reasons carried by EventSessionEnded.
const (
	ReasonHangUp           = "hangup"
	ReasonSkip             = "skip"
	ReasonPeerLeft         = "peer_left"
	ReasonPeerDisconnected = "peer_disconnected"
	ReasonDisconnected     = "disconnected"
	ReasonBackpressure     = "backpressure"
)

// Event is what the coordinator tells a client about its session.
type Event struct {
	Type       EventType          `json:"type"`
	Session    domain.SessionID   `json:"session"`
	Role       domain.Role        `json:"role,omitempty"`
	Peer       *domain.User       `json:"peer,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	ICEServers []webrtc.ICEServer `json:"ice_servers,omitempty"`
}
