package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Roulette/internal/app/orch"
	"github.com/dkeye/Roulette/internal/config"
	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Keys the identity middleware stores on the gin context.
const (
	ClientTokenKey = "client_token"
	ClientNameKey  = "client_name"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
	ErrBadPayload   = errors.New("bad payload")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnknownType  = errors.New("unknown type")
)

type Settings struct {
	SendBuffer int
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	QueueOps   int
	QueueEvery time.Duration
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		SendBuffer: cfg.SendBuffer,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		QueueOps:   cfg.RateLimit.QueueOps,
		QueueEvery: cfg.RateLimit.Interval,
	}
}

// SignalWSController speaks the JSON signaling protocol over WebSocket and
// delivers orchestrator events to the newest connection of each user.
type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RateLimiter
	set     Settings

	mu    sync.RWMutex
	conns map[domain.UserID]*WsSignalConn

	// life orders bind+Connect of a new socket against unbind+OnDisconnect
	// of the one it replaces.
	life  sync.Mutex
	pumps sync.WaitGroup
}

func NewSignalWSController(o *orch.Orchestrator, s Settings) *SignalWSController {
	if s.SendBuffer <= 0 {
		s.SendBuffer = 64
	}
	if s.PongWait <= 0 {
		s.PongWait = 60 * time.Second
	}
	if s.PingPeriod <= 0 || s.PingPeriod >= s.PongWait {
		s.PingPeriod = s.PongWait * 9 / 10
	}
	if s.WriteWait <= 0 {
		s.WriteWait = 5 * time.Second
	}
	ctl := &SignalWSController{
		Orch:  o,
		set:   s,
		conns: make(map[domain.UserID]*WsSignalConn),
	}
	if s.QueueOps > 0 && s.QueueEvery > 0 {
		ctl.Limiter = NewRateLimiter(s.QueueOps, s.QueueEvery)
	}
	o.Notifier = ctl
	return ctl
}

var (
	_ core.SignalConnection = (*WsSignalConn)(nil)
	_ core.Notifier         = (*SignalWSController)(nil)
)

type WsSignalConn struct {
	uid  domain.UserID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// bind makes c the current connection of its user and returns the one it
// replaced, if any.
func (ctl *SignalWSController) bind(c *WsSignalConn) *WsSignalConn {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	prev := ctl.conns[c.uid]
	ctl.conns[c.uid] = c
	return prev
}

// unbind reports whether c was still current. Superseded connections must
// not tear the user down.
func (ctl *SignalWSController) unbind(c *WsSignalConn) bool {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.conns[c.uid] != c {
		return false
	}
	delete(ctl.conns, c.uid)
	return true
}

func (ctl *SignalWSController) current(uid domain.UserID) *WsSignalConn {
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()
	return ctl.conns[uid]
}

// Connections returns the number of live connections.
func (ctl *SignalWSController) Connections() int {
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()
	return len(ctl.conns)
}

// Notify implements core.Notifier.
func (ctl *SignalWSController) Notify(uid domain.UserID, ev core.Event) {
	c := ctl.current(uid)
	if c == nil {
		log.Debug().Str("module", "signal").Str("user", string(uid)).Str("event", string(ev.Type)).Msg("notify: no connection")
		return
	}
	ctl.sendJSON(c, ev)
	if ev.Type == core.EventPaired {
		ctl.attach(c, ev.Session)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	user, err := domain.NewUser(domain.UserID(c.GetString(ClientTokenKey)), c.GetString(ClientNameKey))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.Code(err)})
		return
	}
	log.Info().Str("module", "signal").Str("user", string(user.ID)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.set.ReadLimit > 0 {
		ws.SetReadLimit(ctl.set.ReadLimit)
	}

	conn := &WsSignalConn{
		uid:  user.ID,
		conn: ws,
		send: make(chan core.Frame, ctl.set.SendBuffer),
	}
	ctl.life.Lock()
	if prev := ctl.bind(conn); prev != nil {
		log.Info().Str("module", "signal").Str("user", string(user.ID)).Msg("superseding previous connection")
		prev.Close()
	}
	ctl.Orch.Connect(user)
	ctl.life.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	ctl.pumps.Add(1)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, conn)

	ctl.handleWhoAmI(conn)
	ctl.resume(conn)
}

// CloseAll drops every connection. Each one is torn down as a normal
// disconnect.
func (ctl *SignalWSController) CloseAll() {
	ctl.mu.RLock()
	conns := make([]*WsSignalConn, 0, len(ctl.conns))
	for _, c := range ctl.conns {
		conns = append(conns, c)
	}
	ctl.mu.RUnlock()
	for _, c := range conns {
		c.Close()
	}
}

// Drain waits until every connection has been torn down or ctx is done.
func (ctl *SignalWSController) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		ctl.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
