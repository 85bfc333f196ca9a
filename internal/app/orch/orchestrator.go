package orch

import (
	"context"
	"time"

	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/dkeye/Roulette/internal/metrics"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Orchestrator drives the user lifecycle: presence, queueing, pairing,
// signaling and teardown.
type Orchestrator struct {
	Presence *app.PresenceTracker
	Queue    *app.MatchQueue
	Registry *app.Registry
	Relay    *app.Relay
	Policy   app.Policy
	Notifier core.Notifier
	Metrics  *metrics.Metrics

	ICEServers   []webrtc.ICEServer
	ClosedTTL    time.Duration
	ReapInterval time.Duration
}

type Options struct {
	MailboxSize  int
	ClosedTTL    time.Duration
	ReapInterval time.Duration
	ICEServers   []webrtc.ICEServer
	Policy       app.Policy
	Metrics      *metrics.Metrics
}

// New builds an orchestrator around presence. Notifier defaults to a no-op
// and is usually set once the transport exists.
func New(presence *app.PresenceTracker, opts Options) *Orchestrator {
	if opts.Policy == nil {
		opts.Policy = app.SimplePolicy{}
	}
	if opts.ClosedTTL <= 0 {
		opts.ClosedTTL = time.Minute
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = 30 * time.Second
	}
	o := &Orchestrator{
		Presence:     presence,
		Registry:     app.NewRegistry(),
		Relay:        app.NewRelay(opts.MailboxSize),
		Policy:       opts.Policy,
		Notifier:     core.NopNotifier{},
		Metrics:      opts.Metrics,
		ICEServers:   opts.ICEServers,
		ClosedTTL:    opts.ClosedTTL,
		ReapInterval: opts.ReapInterval,
	}
	o.Queue = app.NewMatchQueue(matcher{o})
	if opts.Metrics != nil {
		presence.OnChange(opts.Metrics.SetOnline)
		o.Queue.OnChange(opts.Metrics.SetWaiting)
	}
	return o
}

// Connect marks the user online.
func (o *Orchestrator) Connect(u *domain.User) {
	o.Presence.SetPresent(u.ID, u.DisplayName)
	log.Info().Str("module", "orch").Str("user", string(u.ID)).Str("name", u.DisplayName).Msg("connected")
}

// Rename changes the display name of an online user. Peers already paired
// keep the name they were told.
func (o *Orchestrator) Rename(uid domain.UserID, displayName string) (string, error) {
	u := domain.User{ID: uid}
	if err := u.SetDisplayName(displayName); err != nil {
		return "", err
	}
	if _, ok := o.Presence.Lookup(uid); !ok {
		return "", domain.ErrUserNotFound
	}
	o.Presence.SetPresent(u.ID, u.DisplayName)
	return u.DisplayName, nil
}

// OnDisconnect forgets everything about uid. Safe to call more than once.
func (o *Orchestrator) OnDisconnect(uid domain.UserID) {
	o.Presence.ClearPresent(uid)
	o.Queue.Dequeue(uid)
	if sid, ok := o.Registry.Lookup(uid); ok {
		o.endSession(sid, uid, core.ReasonDisconnected, core.ReasonPeerDisconnected)
	}
	log.Info().Str("module", "orch").Str("user", string(uid)).Msg("disconnected")
}

// Lookup returns the open session uid is part of.
func (o *Orchestrator) Lookup(uid domain.UserID) (domain.Session, bool) {
	sid, ok := o.Registry.Lookup(uid)
	if !ok {
		return domain.Session{}, false
	}
	s, err := o.Registry.Get(sid)
	if err != nil {
		return domain.Session{}, false
	}
	return s, true
}

func (o *Orchestrator) InQueue(uid domain.UserID) bool {
	_, err := o.Queue.Entry(uid)
	return err == nil
}

func (o *Orchestrator) PresenceSnapshot() app.Snapshot {
	return o.Presence.Snapshot()
}

// Run reaps closed sessions and relay tombstones until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			o.reap(now)
		}
	}
}

func (o *Orchestrator) reap(now time.Time) {
	cutoff := now.Add(-o.ClosedTTL)
	sessions := o.Registry.Reap(cutoff)
	tombstones := o.Relay.Reap(cutoff)
	if sessions+tombstones > 0 {
		log.Debug().Str("module", "orch").Int("sessions", sessions).Int("tombstones", tombstones).Msg("reaped")
	}
}

func (o *Orchestrator) notify(uid domain.UserID, ev core.Event) {
	if o.Notifier == nil {
		return
	}
	o.Notifier.Notify(uid, ev)
}
