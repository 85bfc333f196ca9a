package app

import (
	"testing"
	"time"

	"github.com/dkeye/Roulette/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateAndParticipants(t *testing.T) {
	r := NewRegistry()
	sid, err := r.CreateSession("a", "b")
	require.NoError(t, err)

	role, peer, err := r.Participants(sid, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCaller, role)
	assert.Equal(t, domain.UserID("b"), peer)

	role, peer, err = r.Participants(sid, "b")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCallee, role)
	assert.Equal(t, domain.UserID("a"), peer)

	_, _, err = r.Participants(sid, "c")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, _, err = r.Participants("nope", "a")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRegistry_OneSessionPerUser(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateSession("a", "b")
	require.NoError(t, err)

	_, err = r.CreateSession("a", "c")
	assert.ErrorIs(t, err, domain.ErrAlreadyInSession)
	_, err = r.CreateSession("c", "b")
	assert.ErrorIs(t, err, domain.ErrAlreadyInSession)
	_, err = r.CreateSession("c", "c")
	assert.ErrorIs(t, err, domain.ErrAlreadyInSession)
	assert.Equal(t, 1, r.OpenCount())
}

func TestRegistry_CloseIsIdempotent(t *testing.T) {
	r := NewRegistry()
	sid, err := r.CreateSession("a", "b")
	require.NoError(t, err)

	s, closed, err := r.Close(sid)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, domain.SessionClosed, s.State)
	assert.False(t, s.ClosedAt.IsZero())

	_, closed, err = r.Close(sid)
	require.NoError(t, err)
	assert.False(t, closed)

	_, ok := r.Lookup("a")
	assert.False(t, ok)
	_, ok = r.Lookup("b")
	assert.False(t, ok)

	_, _, err = r.Participants(sid, "a")
	assert.ErrorIs(t, err, domain.ErrSessionClosed)

	// Both are free to pair again.
	_, err = r.CreateSession("b", "a")
	require.NoError(t, err)

	_, _, err = r.Close("missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRegistry_MarkActive(t *testing.T) {
	r := NewRegistry()
	sid, err := r.CreateSession("a", "b")
	require.NoError(t, err)

	assert.True(t, r.MarkActive(sid))
	assert.False(t, r.MarkActive(sid))
	s, err := r.Get(sid)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, s.State)

	_, _, err = r.Close(sid)
	require.NoError(t, err)
	assert.False(t, r.MarkActive(sid))
}

func TestRegistry_Reap(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	old, err := r.CreateSession("a", "b")
	require.NoError(t, err)
	live, err := r.CreateSession("c", "d")
	require.NoError(t, err)
	_, _, err = r.Close(old)
	require.NoError(t, err)

	assert.Equal(t, 0, r.Reap(base))
	assert.Equal(t, 1, r.Reap(base.Add(time.Second)))

	_, err = r.Get(old)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = r.Get(live)
	assert.NoError(t, err)
	assert.Equal(t, 1, r.OpenCount())
}
