package signal

import (
	"encoding/json"

	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRename(
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad rename payload")
		ctl.sendError(conn, "rename", ErrBadPayload)
		return
	}
	name, err := ctl.Orch.Rename(conn.uid, p.Name)
	if err != nil {
		ctl.sendError(conn, "rename", err)
		return
	}
	log.Info().Str("module", "signal").Str("user", string(conn.uid)).Str("name", name).Msg("rename")
	ctl.handleWhoAmI(conn)
}

func (ctl *SignalWSController) handleWhoAmI(conn *WsSignalConn) {
	name, _ := ctl.Orch.Presence.Lookup(conn.uid)
	resp := struct {
		Type    string           `json:"type"`
		ID      domain.UserID    `json:"id"`
		Name    string           `json:"name"`
		InQueue bool             `json:"in_queue"`
		Session domain.SessionID `json:"session,omitempty"`
		Role    domain.Role      `json:"role,omitempty"`
	}{
		Type:    "whoami",
		ID:      conn.uid,
		Name:    name,
		InQueue: ctl.Orch.InQueue(conn.uid),
	}
	if s, ok := ctl.Orch.Lookup(conn.uid); ok {
		resp.Session = s.ID
		resp.Role, _ = s.RoleOf(conn.uid)
	}
	ctl.sendJSON(conn, resp)
}
