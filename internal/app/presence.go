package app

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

// Snapshot is the set of online users, keyed by id, valued by display name.
type Snapshot map[domain.UserID]string

const (
	watchBuffer   = 8
	mirrorQueue   = 256
	mirrorTimeout = 2 * time.Second
)

type presenceOp struct {
	uid   domain.UserID
	name  string
	clear bool
}

// PresenceTracker is the in-process presence directory. Sinks get a
// best-effort ordered copy of every change.
type PresenceTracker struct {
	mu    sync.Mutex
	users map[domain.UserID]string
	subs  map[chan Snapshot]struct{}

	sinks  []core.PresenceSink
	mirror  chan presenceOp
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	onChange func(count int)
}

func NewPresenceTracker(sinks ...core.PresenceSink) *PresenceTracker {
	t := &PresenceTracker{
		users: make(map[domain.UserID]string),
		subs:  make(map[chan Snapshot]struct{}),
		sinks: sinks,
		done:  make(chan struct{}),
	}
	if len(sinks) > 0 {
		t.mirror = make(chan presenceOp, mirrorQueue)
		t.stopped = make(chan struct{})
		go t.mirrorLoop()
	}
	return t
}

// OnChange registers a hook fired (under the tracker lock) with the new
// online count. Used for metrics.
func (t *PresenceTracker) OnChange(fn func(count int)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

func (t *PresenceTracker) SetPresent(uid domain.UserID, displayName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.users[uid]; ok && old == displayName {
		return
	}
	t.users[uid] = displayName
	t.broadcastLocked()
	t.mirrorLocked(presenceOp{uid: uid, name: displayName})
	log.Debug().Str("module", "app.presence").Str("user", string(uid)).Int("online", len(t.users)).Msg("present")
}

func (t *PresenceTracker) ClearPresent(uid domain.UserID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.users[uid]; !ok {
		return
	}
	delete(t.users, uid)
	t.broadcastLocked()
	t.mirrorLocked(presenceOp{uid: uid, clear: true})
	log.Debug().Str("module", "app.presence").Str("user", string(uid)).Int("online", len(t.users)).Msg("cleared")
}

func (t *PresenceTracker) Lookup(uid domain.UserID) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	name, ok := t.users[uid]
	return name, ok
}

func (t *PresenceTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users)
}

func (t *PresenceTracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.users)
}

// Watch streams snapshots: the current one first, then one per change.
// The channel is closed once ctx is done. A slow reader loses intermediate
// snapshots, never the latest.
func (t *PresenceTracker) Watch(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, watchBuffer)

	t.mu.Lock()
	ch <- maps.Clone(t.users)
	t.subs[ch] = struct{}{}
	t.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-t.done:
		}
		t.mu.Lock()
		if _, ok := t.subs[ch]; ok {
			delete(t.subs, ch)
			close(ch)
		}
		t.mu.Unlock()
	}()
	return ch
}

// Close ends all watchers and stops the mirror worker once the updates
// already queued have been applied.
func (t *PresenceTracker) Close() {
	t.once.Do(func() { close(t.done) })
	if t.stopped != nil {
		<-t.stopped
	}
}

func (t *PresenceTracker) broadcastLocked() {
	if t.onChange != nil {
		t.onChange(len(t.users))
	}
	if len(t.subs) == 0 {
		return
	}
	snap := maps.Clone(t.users)
	for ch := range t.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Full: drop the oldest pending snapshot to make room.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (t *PresenceTracker) mirrorLocked(op presenceOp) {
	if t.mirror == nil {
		return
	}
	select {
	case t.mirror <- op:
	default:
		log.Warn().Str("module", "app.presence").Str("user", string(op.uid)).Msg("presence mirror queue full, dropping update")
	}
}

func (t *PresenceTracker) mirrorLoop() {
	defer close(t.stopped)
	for {
		select {
		case <-t.done:
			for {
				select {
				case op := <-t.mirror:
					t.apply(op)
				default:
					return
				}
			}
		case op := <-t.mirror:
			t.apply(op)
		}
	}
}

func (t *PresenceTracker) apply(op presenceOp) {
	for _, sink := range t.sinks {
		t.applySink(sink, op)
	}
}

func (t *PresenceTracker) applySink(sink core.PresenceSink, op presenceOp) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	var err error
	if op.clear {
		err = sink.ClearPresent(ctx, op.uid)
	} else {
		err = sink.SetPresent(ctx, op.uid, op.name)
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "app.presence").Str("user", string(op.uid)).Bool("clear", op.clear).Msg("presence mirror failed")
	}
}
