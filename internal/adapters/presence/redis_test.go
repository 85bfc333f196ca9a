package presence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/config"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMirror(t *testing.T) (*RedisPresence, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	p, err := Connect(context.Background(), config.RedisConfig{
		Addr:        mr.Addr(),
		PresenceKey: "test:online",
		Channel:     "test:presence",
		Timeout:     time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, mr
}

func TestRedisPresence_HashMirror(t *testing.T) {
	p, mr := newMirror(t)
	ctx := context.Background()

	require.NoError(t, p.SetPresent(ctx, "a", "alice"))
	require.NoError(t, p.SetPresent(ctx, "b", "bob"))
	require.NoError(t, p.ClearPresent(ctx, "a"))
	require.NoError(t, p.ClearPresent(ctx, "a"))

	assert.Equal(t, "bob", mr.HGet("test:online", "b"))
	snap, err := p.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.UserID]string{"b": "bob"}, snap)
}

func TestRedisPresence_ConnectClearsStaleEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.HSet("test:online", "ghost", "boo")

	p, err := Connect(context.Background(), config.RedisConfig{Addr: mr.Addr(), PresenceKey: "test:online"})
	require.NoError(t, err)
	defer p.Close()
	assert.False(t, mr.Exists("test:online"))
}

func TestRedisPresence_ConnectFails(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), config.RedisConfig{Addr: addr, Timeout: 200 * time.Millisecond})
	assert.Error(t, err)
}

func TestRedisPresence_PublishesChanges(t *testing.T) {
	p, mr := newMirror(t)
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	sub := client.Subscribe(ctx, "test:presence")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	msgs := sub.Channel()

	require.NoError(t, p.SetPresent(ctx, "a", "alice"))
	require.NoError(t, p.ClearPresent(ctx, "a"))

	for _, want := range []Change{
		{Op: OpJoin, UserID: "a", Name: "alice"},
		{Op: OpLeave, UserID: "a"},
	} {
		select {
		case m := <-msgs:
			var got Change
			require.NoError(t, json.Unmarshal([]byte(m.Payload), &got))
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %v", want)
		}
	}
}

// The tracker keeps working when Redis goes away.
func TestRedisPresence_AsTrackerSink(t *testing.T) {
	p, mr := newMirror(t)
	tracker := app.NewPresenceTracker(p)
	defer tracker.Close()

	tracker.SetPresent("a", "alice")
	require.Eventually(t, func() bool {
		return mr.HGet("test:online", "a") == "alice"
	}, 2*time.Second, 10*time.Millisecond)

	mr.Close()
	tracker.SetPresent("b", "bob")
	assert.Equal(t, 2, tracker.Count())
}

func TestNew_UsesGivenClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	p := New(client, "k", "")
	require.NoError(t, p.SetPresent(context.Background(), "x", "xena"))
	assert.Equal(t, "xena", mr.HGet("k", "x"))
}
