package core

import (
	"context"

	"github.com/dkeye/Roulette/internal/domain"
)

// Notifier pushes lifecycle events to a user's client, out-of-band of the
// signaling mailboxes. Implementations must not block.
type Notifier interface {
	Notify(uid domain.UserID, ev Event)
}

// PresenceSink mirrors presence into an external directory.
// Calls are best-effort; errors are logged by the caller and dropped.
type PresenceSink interface {
	SetPresent(ctx context.Context, uid domain.UserID, displayName string) error
	ClearPresent(ctx context.Context, uid domain.UserID) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(domain.UserID, Event) {}
