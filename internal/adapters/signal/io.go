package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Roulette/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.set.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("user", string(c.uid)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("user", string(c.uid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.set.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("user", string(c.uid)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.set.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("user", string(c.uid)).Msg("writePump ping error")
				return
			}
		}
	}
}

// release tears the user down if c is still its current connection.
func (ctl *SignalWSController) release(c *WsSignalConn) bool {
	ctl.life.Lock()
	defer ctl.life.Unlock()
	if !ctl.unbind(c) {
		return false
	}
	if ctl.Limiter != nil {
		ctl.Limiter.Forget(c.uid)
	}
	ctl.Orch.OnDisconnect(c.uid)
	return true
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, c *WsSignalConn) {
	defer func() {
		cancel()
		c.Close()
		ctl.release(c)
		log.Info().Str("module", "signal").Str("user", string(c.uid)).Msg("readPump closing")
		ctl.pumps.Done()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.set.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.set.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("user", string(c.uid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("user", string(c.uid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(ctl.set.PongWait))
			ctl.handleSignal(c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(c.uid)).Msg("bad json")
		ctl.sendError(c, "", ErrBadPayload)
		return
	}

	switch env.Type {
	case "enter_queue":
		ctl.handleEnterQueue(c, data)
	case "leave_queue":
		ctl.handleLeaveQueue(c)
	case "skip":
		ctl.handleSkip(c)
	case "offer", "answer":
		ctl.handleDescription(c, domain.SignalKind(env.Type), data)
	case "candidate":
		ctl.handleCandidate(c, data)
	case "hangup":
		ctl.handleHangUp(c)
	case "rename":
		ctl.handleRename(c, data)
	case "whoami":
		ctl.handleWhoAmI(c)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, env.Type, ErrUnknownType)
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); errors.Is(err, ErrBackpressure) {
		log.Warn().Str("module", "signal").Str("user", string(c.uid)).Msg("send buffer full, dropping frame")
	}
}

type errorMessage struct {
	Type  string `json:"type"`
	Op    string `json:"op,omitempty"`
	Error string `json:"error"`
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, op string, err error) {
	ctl.sendJSON(c, errorMessage{Type: "error", Op: op, Error: errorCode(err)})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrBadPayload):
		return "bad_payload"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUnknownType):
		return "unknown_type"
	default:
		return domain.Code(err)
	}
}
