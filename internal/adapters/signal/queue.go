package signal

import (
	"encoding/json"

	"github.com/dkeye/Roulette/internal/app"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleEnterQueue(
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		Name string `json:"name,omitempty"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, "enter_queue", ErrBadPayload)
		return
	}
	if !ctl.allow(conn) {
		ctl.sendError(conn, "enter_queue", ErrRateLimited)
		return
	}
	out, err := ctl.Orch.EnterQueue(conn.uid, p.Name)
	if err != nil {
		ctl.sendError(conn, "enter_queue", err)
		return
	}
	ctl.replyOutcome(conn, out)
}

func (ctl *SignalWSController) handleLeaveQueue(conn *WsSignalConn) {
	left := ctl.Orch.LeaveQueue(conn.uid)
	log.Info().Str("module", "signal").Str("user", string(conn.uid)).Bool("was_waiting", left).Msg("leave queue")
	ctl.sendJSON(conn, typedMessage{Type: "left_queue"})
}

// handleSkip hangs up and looks for the next partner straight away.
func (ctl *SignalWSController) handleSkip(conn *WsSignalConn) {
	if !ctl.allow(conn) {
		ctl.sendError(conn, "skip", ErrRateLimited)
		return
	}
	out, err := ctl.Orch.Skip(conn.uid)
	if err != nil {
		ctl.sendError(conn, "skip", err)
		return
	}
	ctl.replyOutcome(conn, out)
}

// replyOutcome answers a queue operation. A pairing is announced through
// the paired event instead.
func (ctl *SignalWSController) replyOutcome(conn *WsSignalConn, out app.Outcome) {
	if out.Status == app.Waiting {
		ctl.sendJSON(conn, typedMessage{Type: "waiting"})
	}
}

func (ctl *SignalWSController) allow(conn *WsSignalConn) bool {
	return ctl.Limiter == nil || ctl.Limiter.Allow(conn.uid)
}
