package app

import "github.com/dkeye/Roulette/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	// DropMessage loses the live copy; offers and answers survive via replay.
	DropMessage
	// EndSession hangs the session up.
	EndSession
)

type Policy interface {
	OnBackPressure(sid domain.SessionID, msg domain.Envelope) BackpressureAction
}

// SimplePolicy tolerates lost candidates and gives up on a session whose
// peer cannot take a description.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ domain.SessionID, msg domain.Envelope) BackpressureAction {
	if msg.Kind == domain.SignalCandidate {
		return DropMessage
	}
	return EndSession
}
