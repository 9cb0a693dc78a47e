package telegraph

import (
	"sync"
	"time"

	"github.com/zulandar/taskline/internal/intent"
)

// DefaultPendingTTL is how long a staged suggestion waits for a vote before
// it is treated as dismissed.
const DefaultPendingTTL = 15 * time.Minute

// PendingState is the result of looking up a user's pending slot.
type PendingState int

const (
	// StateNone means nothing is staged for the user.
	StateNone PendingState = iota
	// StateProposed means a live suggestion was found and removed.
	StateProposed
	// StateExpired means a suggestion existed but outlived the TTL.
	StateExpired
)

func (s PendingState) String() string {
	switch s {
	case StateProposed:
		return "proposed"
	case StateExpired:
		return "expired"
	default:
		return "none"
	}
}

// PendingAction is a proposed task awaiting the user's confirmation.
type PendingAction struct {
	Task      intent.TaskIntent
	Source    string // task source recorded on confirmation
	CreatedAt time.Time
}

// PendingStore holds at most one PendingAction per user. A new proposal
// replaces the previous one. A swept suggestion leaves a tombstone so a
// late vote still reads as expired until the user's next proposal.
type PendingStore struct {
	mu         sync.Mutex
	slots      map[string]PendingAction
	tombstones map[string]time.Time // user ID -> expiry of the swept proposal
	ttl        time.Duration
	now        func() time.Time
}

// PendingStoreOpts holds parameters for creating a PendingStore.
type PendingStoreOpts struct {
	TTL time.Duration    // defaults to DefaultPendingTTL
	Now func() time.Time // defaults to time.Now
}

// NewPendingStore creates an empty PendingStore.
func NewPendingStore(opts PendingStoreOpts) *PendingStore {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &PendingStore{
		slots:      make(map[string]PendingAction),
		tombstones: make(map[string]time.Time),
		ttl:        ttl,
		now:        now,
	}
}

// Propose stages action for userID, replacing any earlier one. It reports
// whether a live proposal was replaced.
func (p *PendingStore) Propose(userID string, action PendingAction) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = p.now()
	}
	prev, ok := p.slots[userID]
	replaced := ok && !p.expiredAt(prev, p.now())
	p.slots[userID] = action
	delete(p.tombstones, userID)
	return replaced
}

// Take removes and returns the user's pending action.
func (p *PendingStore) Take(userID string) (PendingAction, PendingState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.slots[userID]
	if !ok {
		if _, swept := p.tombstones[userID]; swept {
			delete(p.tombstones, userID)
			return PendingAction{}, StateExpired
		}
		return PendingAction{}, StateNone
	}
	delete(p.slots, userID)
	if p.expiredAt(a, p.now()) {
		return PendingAction{}, StateExpired
	}
	return a, StateProposed
}

// Sweep turns every entry expired at now into a tombstone and returns how
// many were swept.
func (p *PendingStore) Sweep(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for id, a := range p.slots {
		if p.expiredAt(a, now) {
			delete(p.slots, id)
			p.tombstones[id] = a.CreatedAt.Add(p.ttl)
			n++
		}
	}
	return n
}

// Len returns the number of staged entries, expired or not. Tombstones are
// not counted.
func (p *PendingStore) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

func (p *PendingStore) expiredAt(a PendingAction, now time.Time) bool {
	return now.Sub(a.CreatedAt) > p.ttl
}
