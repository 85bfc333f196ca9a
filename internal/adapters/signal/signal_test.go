package signal

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/app/orch"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	srv  *httptest.Server
	orch *orch.Orchestrator
	ctl  *SignalWSController
	ctx  context.Context
}

func newHarness(t *testing.T, s Settings) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	p := app.NewPresenceTracker()
	t.Cleanup(p.Close)
	o := orch.New(p, orch.Options{MailboxSize: 16})
	ctl := NewSignalWSController(o, s)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set(ClientTokenKey, c.Query("uid"))
		c.Set(ClientNameKey, c.Query("name"))
		ctl.HandleSignal(ctx, c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &harness{srv: srv, orch: o, ctl: ctl, ctx: ctx}
}

func (h *harness) dial(t *testing.T, uid string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?uid=" + url.QueryEscape(uid) + "&name=" + url.QueryEscape("name-"+uid)
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	who := expect(t, ws, "whoami")
	require.Equal(t, uid, who["id"])
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(v))
}

// next returns the next non-presence message.
func next(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	for {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		var m map[string]any
		require.NoError(t, ws.ReadJSON(&m))
		if m["type"] != "presence" {
			return m
		}
	}
}

func expect(t *testing.T, ws *websocket.Conn, typ string) map[string]any {
	t.Helper()
	m := next(t, ws)
	require.Equal(t, typ, m["type"], "message: %v", m)
	return m
}

func pairUp(t *testing.T, h *harness) (a, b *websocket.Conn, sid string) {
	t.Helper()
	a = h.dial(t, "A")
	b = h.dial(t, "B")
	send(t, a, map[string]any{"type": "enter_queue"})
	expect(t, a, "waiting")
	send(t, b, map[string]any{"type": "enter_queue"})

	pb := expect(t, b, "paired")
	pa := expect(t, a, "paired")
	require.Equal(t, pa["session"], pb["session"])
	assert.Equal(t, "caller", pa["role"])
	assert.Equal(t, "callee", pb["role"])
	assert.Equal(t, "name-B", pa["peer"].(map[string]any)["name"])
	assert.Equal(t, "A", pb["peer"].(map[string]any)["id"])
	return a, b, pa["session"].(string)
}

func TestSignal_PairRelayHangUp(t *testing.T) {
	h := newHarness(t, Settings{})
	a, b, sid := pairUp(t, h)

	send(t, a, map[string]any{"type": "offer", "session": sid, "sdp": "v=0 offer"})
	off := expect(t, b, "offer")
	assert.Equal(t, sid, off["session"])
	assert.Equal(t, "caller", off["role"])
	assert.Equal(t, "v=0 offer", off["sdp"])

	send(t, a, map[string]any{"type": "candidate", "session": sid, "candidate": map[string]any{"candidate": "cand-a", "sdpMid": "0"}})
	c := expect(t, b, "candidate")
	assert.Equal(t, map[string]any{"candidate": "cand-a", "sdpMid": "0"}, c["candidate"])

	send(t, b, map[string]any{"type": "answer", "session": sid, "sdp": "v=0 answer"})
	ans := expect(t, a, "answer")
	assert.Equal(t, "callee", ans["role"])
	assert.Equal(t, "v=0 answer", ans["sdp"])

	send(t, b, map[string]any{"type": "whoami"})
	who := expect(t, b, "whoami")
	assert.Equal(t, sid, who["session"])
	assert.Equal(t, "callee", who["role"])

	send(t, b, map[string]any{"type": "hangup"})
	endB := expect(t, b, "session_ended")
	assert.Equal(t, "hangup", endB["reason"])
	endA := expect(t, a, "session_ended")
	assert.Equal(t, "peer_left", endA["reason"])

	send(t, a, map[string]any{"type": "candidate", "session": sid, "candidate": "{}"})
	e := expect(t, a, "error")
	assert.Equal(t, "session_closed", e["error"])
}

func TestSignal_ErrorReplies(t *testing.T) {
	h := newHarness(t, Settings{})
	a, b, sid := pairUp(t, h)

	send(t, b, map[string]any{"type": "answer", "session": sid, "sdp": "early"})
	e := expect(t, b, "error")
	assert.Equal(t, "answer", e["op"])
	assert.Equal(t, "unexpected_message", e["error"])

	send(t, a, map[string]any{"type": "candidate", "session": sid, "role": "callee", "candidate": "{}"})
	e = expect(t, a, "error")
	assert.Equal(t, "role_mismatch", e["error"])

	send(t, a, map[string]any{"type": "enter_queue"})
	e = expect(t, a, "error")
	assert.Equal(t, "already_in_session", e["error"])

	send(t, a, map[string]any{"type": "offer"})
	e = expect(t, a, "error")
	assert.Equal(t, "bad_payload", e["error"])

	send(t, a, map[string]any{"type": "teleport"})
	e = expect(t, a, "error")
	assert.Equal(t, "unknown_type", e["error"])

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("{nope")))
	e = expect(t, a, "error")
	assert.Equal(t, "bad_payload", e["error"])

	c := h.dial(t, "C")
	send(t, c, map[string]any{"type": "hangup"})
	e = expect(t, c, "error")
	assert.Equal(t, "not_in_session", e["error"])

	send(t, c, map[string]any{"type": "ping"})
	expect(t, c, "pong")
}

func TestSignal_QueueRateLimited(t *testing.T) {
	h := newHarness(t, Settings{QueueOps: 2, QueueEvery: time.Minute})
	a := h.dial(t, "A")

	send(t, a, map[string]any{"type": "enter_queue"})
	expect(t, a, "waiting")
	send(t, a, map[string]any{"type": "enter_queue"})
	expect(t, a, "waiting")
	send(t, a, map[string]any{"type": "enter_queue"})
	e := expect(t, a, "error")
	assert.Equal(t, "rate_limited", e["error"])

	send(t, a, map[string]any{"type": "leave_queue"})
	expect(t, a, "left_queue")
	assert.False(t, h.orch.InQueue("A"))
}

func TestSignal_SkipRequeuesSkipper(t *testing.T) {
	h := newHarness(t, Settings{})
	a, b, _ := pairUp(t, h)

	send(t, a, map[string]any{"type": "skip"})
	endA := expect(t, a, "session_ended")
	assert.Equal(t, "skip", endA["reason"])
	expect(t, a, "waiting")
	endB := expect(t, b, "session_ended")
	assert.Equal(t, "peer_left", endB["reason"])

	assert.True(t, h.orch.InQueue("A"))
	assert.False(t, h.orch.InQueue("B"))
}

func TestSignal_DisconnectEndsPeerSession(t *testing.T) {
	h := newHarness(t, Settings{})
	a, b, _ := pairUp(t, h)

	require.NoError(t, a.Close())
	end := expect(t, b, "session_ended")
	assert.Equal(t, "peer_disconnected", end["reason"])

	require.Eventually(t, func() bool {
		_, ok := h.orch.Presence.Lookup("A")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	_, ok := h.orch.Lookup("B")
	assert.False(t, ok)
}

func TestSignal_ReconnectResumesSession(t *testing.T) {
	h := newHarness(t, Settings{})
	a, b, sid := pairUp(t, h)

	send(t, a, map[string]any{"type": "offer", "session": sid, "sdp": "v=0 offer"})
	expect(t, b, "offer")

	b2 := h.dial(t, "B")
	res := expect(t, b2, "session_resumed")
	assert.Equal(t, sid, res["session"])
	assert.Equal(t, "callee", res["role"])
	replay := expect(t, b2, "offer")
	assert.Equal(t, "v=0 offer", replay["sdp"])

	// The superseded socket is closed without tearing the session down.
	require.NoError(t, b.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := b.ReadMessage(); err != nil {
			break
		}
	}
	_, ok := h.orch.Lookup("A")
	require.True(t, ok)

	send(t, b2, map[string]any{"type": "answer", "session": sid, "sdp": "v=0 answer"})
	ans := expect(t, a, "answer")
	assert.Equal(t, "v=0 answer", ans["sdp"])
	assert.Equal(t, 2, h.ctl.Connections())
}

func TestSignal_PresenceBroadcast(t *testing.T) {
	h := newHarness(t, Settings{})
	go func() { _ = h.ctl.Run(h.ctx) }()

	a := h.dial(t, "A")
	h.dial(t, "B")

	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, a.SetReadDeadline(deadline))
		var m PresenceMessage
		require.NoError(t, a.ReadJSON(&m))
		if m.Type == "presence" && m.Count == 2 {
			assert.Equal(t, "name-B", m.Users[1].DisplayName)
			break
		}
	}
}

func TestNewPresenceMessage_Sorted(t *testing.T) {
	msg := NewPresenceMessage(app.Snapshot{"b": "bob", "a": "alice"})
	assert.Equal(t, 2, msg.Count)
	assert.Equal(t, []domain.User{{ID: "a", DisplayName: "alice"}, {ID: "b", DisplayName: "bob"}}, msg.Users)
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("u"))
	assert.True(t, rl.Allow("u"))
	assert.False(t, rl.Allow("u"))
	assert.True(t, rl.Allow("v"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("u"))

	rl.Forget("u")
	assert.True(t, rl.Allow("u"))
	assert.True(t, rl.Allow("u"))
	assert.False(t, rl.Allow("u"))
}

// A socket replaced while its old one is still shutting down must stay
// usable, whichever teardown wins.
func TestSignal_ReconnectRacingTeardownKeepsPresence(t *testing.T) {
	h := newHarness(t, Settings{})
	ws := h.dial(t, "A")

	for i := 0; i < 25; i++ {
		require.NoError(t, ws.Close())
		ws = h.dial(t, "A")

		send(t, ws, map[string]any{"type": "enter_queue"})
		expect(t, ws, "waiting")
		send(t, ws, map[string]any{"type": "leave_queue"})
		expect(t, ws, "left_queue")
	}
	_, ok := h.orch.Presence.Lookup("A")
	assert.True(t, ok)
}

// release of a superseded socket never touches the user.
func TestSignal_ReleaseSupersededConnection(t *testing.T) {
	h := newHarness(t, Settings{})
	h.dial(t, "A")
	old := h.ctl.current("A")
	require.NotNil(t, old)

	ws := h.dial(t, "A")
	assert.False(t, h.ctl.release(old))

	send(t, ws, map[string]any{"type": "enter_queue"})
	expect(t, ws, "waiting")
	assert.True(t, h.orch.InQueue("A"))
}

func TestSignal_DrainAfterCloseAll(t *testing.T) {
	h := newHarness(t, Settings{})
	pairUp(t, h)

	h.ctl.CloseAll()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.ctl.Drain(ctx))

	assert.Equal(t, 0, h.ctl.Connections())
	assert.Equal(t, 0, h.orch.Presence.Count())
	_, ok := h.orch.Lookup("A")
	assert.False(t, ok)
}
