package signal

import (
	"github.com/rs/zerolog/log"
)

type typedMessage struct {
	Type string `json:"type"`
}

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, typedMessage{Type: "pong"})
}

// handleHangUp ends the session; the session_ended event is the reply.
func (ctl *SignalWSController) handleHangUp(conn *WsSignalConn) {
	if err := ctl.Orch.HangUp(conn.uid); err != nil {
		ctl.sendError(conn, "hangup", err)
		return
	}
	log.Info().Str("module", "signal").Str("user", string(conn.uid)).Msg("hangup")
}
