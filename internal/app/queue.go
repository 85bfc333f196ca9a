package app

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

// Matcher is consulted inside the queue's critical section, so admission and
// session creation are atomic with the pair-and-remove step.
type Matcher interface {
	// Admit rejects users that must not wait (already in a session, offline).
	Admit(uid domain.UserID) error
	// Pair creates the session. caller is the entry that waited longer.
	// ErrAlreadyInSession or ErrUserNotFound discards the waiter.
	Pair(caller, callee domain.QueueEntry) (domain.SessionID, error)
}

type OutcomeStatus string

const (
	Waiting OutcomeStatus = "waiting"
	Paired  OutcomeStatus = "paired"
)

type Outcome struct {
	Status    OutcomeStatus
	Peer      domain.QueueEntry
	SessionID domain.SessionID
}

// MatchQueue is a FIFO of users waiting for a partner.
type MatchQueue struct {
	mu      sync.Mutex
	order   *list.List // of domain.QueueEntry
	index   map[domain.UserID]*list.Element
	matcher Matcher
	now     func() time.Time

	onChange func(waiting int)
}

func NewMatchQueue(m Matcher) *MatchQueue {
	return &MatchQueue{
		order:   list.New(),
		index:   make(map[domain.UserID]*list.Element),
		matcher: m,
		now:     time.Now,
	}
}

// OnChange registers a hook fired with the queue length after it changes.
func (q *MatchQueue) OnChange(fn func(waiting int)) {
	q.mu.Lock()
	q.onChange = fn
	q.mu.Unlock()
}

// Enqueue either parks uid or pairs it with the longest waiter.
// Re-entering while already waiting keeps the original position.
func (q *MatchQueue) Enqueue(uid domain.UserID, displayName string) (Outcome, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.matcher != nil {
		if err := q.matcher.Admit(uid); err != nil {
			return Outcome{}, err
		}
	}
	if _, ok := q.index[uid]; ok {
		return Outcome{Status: Waiting}, nil
	}

	arriving := domain.QueueEntry{UserID: uid, DisplayName: displayName, EnqueuedAt: q.now()}
	for el := q.order.Front(); el != nil; el = q.order.Front() {
		waiter := el.Value.(domain.QueueEntry)
		q.removeLocked(el)

		var sid domain.SessionID
		if q.matcher != nil {
			var err error
			sid, err = q.matcher.Pair(waiter, arriving)
			if errors.Is(err, domain.ErrAlreadyInSession) || errors.Is(err, domain.ErrUserNotFound) {
				log.Warn().Str("module", "app.queue").Str("user", string(waiter.UserID)).Msg("dropping stale waiter")
				continue
			}
			if err != nil {
				q.pushFrontLocked(waiter)
				q.changedLocked()
				return Outcome{}, err
			}
		}
		q.changedLocked()
		log.Info().Str("module", "app.queue").Str("caller", string(waiter.UserID)).Str("callee", string(uid)).Str("session", string(sid)).Msg("paired")
		return Outcome{Status: Paired, Peer: waiter, SessionID: sid}, nil
	}

	q.index[uid] = q.order.PushBack(arriving)
	q.changedLocked()
	log.Info().Str("module", "app.queue").Str("user", string(uid)).Int("waiting", q.order.Len()).Msg("waiting")
	return Outcome{Status: Waiting}, nil
}

// Dequeue removes uid. It reports whether uid was waiting.
func (q *MatchQueue) Dequeue(uid domain.UserID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	el, ok := q.index[uid]
	if !ok {
		return false
	}
	q.removeLocked(el)
	q.changedLocked()
	log.Info().Str("module", "app.queue").Str("user", string(uid)).Msg("dequeued")
	return true
}

func (q *MatchQueue) Entry(uid domain.UserID) (domain.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	el, ok := q.index[uid]
	if !ok {
		return domain.QueueEntry{}, domain.ErrNotInQueue
	}
	return el.Value.(domain.QueueEntry), nil
}

func (q *MatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.order.Len()
}

// Waiting returns the queue in FIFO order.
func (q *MatchQueue) Waiting() []domain.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.QueueEntry, 0, q.order.Len())
	for el := q.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(domain.QueueEntry))
	}
	return out
}

func (q *MatchQueue) removeLocked(el *list.Element) {
	e := q.order.Remove(el).(domain.QueueEntry)
	delete(q.index, e.UserID)
}

func (q *MatchQueue) pushFrontLocked(e domain.QueueEntry) {
	q.index[e.UserID] = q.order.PushFront(e)
}

func (q *MatchQueue) changedLocked() {
	if q.onChange != nil {
		q.onChange(q.order.Len())
	}
}
