package signal

import (
	"context"
	"sort"

	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

type PresenceMessage struct {
	Type  string        `json:"type"`
	Count int           `json:"count"`
	Users []domain.User `json:"users"`
}

func NewPresenceMessage(snap app.Snapshot) PresenceMessage {
	users := make([]domain.User, 0, len(snap))
	for id, name := range snap {
		users = append(users, domain.User{ID: id, DisplayName: name})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return PresenceMessage{Type: "presence", Count: len(users), Users: users}
}

// Run broadcasts every presence change to all connections until ctx is done.
func (ctl *SignalWSController) Run(ctx context.Context) error {
	for snap := range ctl.Orch.Presence.Watch(ctx) {
		ctl.Broadcast(NewPresenceMessage(snap))
	}
	log.Info().Str("module", "signal").Msg("presence broadcaster stopped")
	return nil
}

func (ctl *SignalWSController) Broadcast(v any) {
	ctl.mu.RLock()
	conns := make([]*WsSignalConn, 0, len(ctl.conns))
	for _, c := range ctl.conns {
		conns = append(conns, c)
	}
	ctl.mu.RUnlock()
	for _, c := range conns {
		ctl.sendJSON(c, v)
	}
}
