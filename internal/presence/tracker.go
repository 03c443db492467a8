package presence

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// FinalOfflineFunc runs when a user's last connection has been gone for the
// whole grace period.
type FinalOfflineFunc func(userID string, lastSeen time.Time)

// Entry is one user's externally visible presence.
type Entry struct {
	Status     string     `json:"status"`
	Hidden     bool       `json:"hidden"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// Tracker reference-counts active connections per user and debounces the
// offline transition: the last disconnect only becomes an offline
// announcement after a grace period with no reconnect, so short network
// blips and tab reloads do not flicker the user's status.
//
// All operations are total; a single mutex keeps the 0→1 and N→0 edges
// linearizable with respect to concurrent connects and disconnects.
type Tracker struct {
	mu       sync.Mutex
	clk      clock.Clock
	grace    time.Duration
	counts   map[string]uint
	hidden   map[string]struct{}
	lastSeen map[string]time.Time
	timers   map[string]*clock.Timer
}

func NewTracker(clk clock.Clock, grace time.Duration) *Tracker {
	return &Tracker{
		clk:      clk,
		grace:    grace,
		counts:   make(map[string]uint),
		hidden:   make(map[string]struct{}),
		lastSeen: make(map[string]time.Time),
		timers:   make(map[string]*clock.Timer),
	}
}

// MarkOnline registers one more connection for the user. It cancels any
// pending offline announcement and clears a residual last-seen stamp so the
// user never flashes a stale offline state. Returns true only on the 0→1
// edge, which is the caller's cue to broadcast a status change.
func (t *Tracker) MarkOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
		delete(t.timers, userID)
	}
	delete(t.lastSeen, userID)

	t.counts[userID]++
	return t.counts[userID] == 1
}

// MarkOffline unregisters one connection. When the count would reach zero
// the user is removed from the table immediately (IsOnline turns false),
// but the offline announcement is deferred by the grace period; a reconnect
// before the timer fires cancels it and onFinal never runs.
func (t *Tracker) MarkOffline(userID string, onFinal FinalOfflineFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.counts[userID]
	if !ok {
		return
	}
	if n > 1 {
		t.counts[userID] = n - 1
		return
	}
	delete(t.counts, userID)

	// Replace, never stack: at most one pending job per user.
	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
	}
	t.timers[userID] = t.clk.AfterFunc(t.grace, func() {
		t.finalizeOffline(userID, onFinal)
	})
}

// finalizeOffline is the fired grace timer. The live count is re-checked
// under the lock: timer cancellation races with firing, so the count is the
// single authority on whether the user actually went offline.
func (t *Tracker) finalizeOffline(userID string, onFinal FinalOfflineFunc) {
	t.mu.Lock()
	if _, online := t.counts[userID]; online {
		t.mu.Unlock()
		return
	}
	delete(t.timers, userID)
	now := t.clk.Now()
	t.lastSeen[userID] = now
	t.mu.Unlock()

	if onFinal != nil {
		onFinal(userID, now)
	}
}

// SetHidden toggles the appear-offline flag. Visible status is always
// computed as hidden ? offline : (connected ? online : offline).
func (t *Tracker) SetHidden(userID string, hidden bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if hidden {
		t.hidden[userID] = struct{}{}
	} else {
		delete(t.hidden, userID)
	}
}

func (t *Tracker) IsHidden(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.hidden[userID]
	return ok
}

func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.counts[userID] > 0
}

func (t *Tracker) IsVisibleOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, hidden := t.hidden[userID]; hidden {
		return false
	}
	return t.counts[userID] > 0
}

func (t *Tracker) OnlineUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := make([]string, 0, len(t.counts))
	for userID := range t.counts {
		users = append(users, userID)
	}
	return users
}

// Snapshot returns every non-hidden user who is either online or has a
// recorded last-seen time.
func (t *Tracker) Snapshot() map[string]Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := make(map[string]Entry, len(t.counts)+len(t.lastSeen))
	for userID := range t.counts {
		if _, hidden := t.hidden[userID]; hidden {
			continue
		}
		snapshot[userID] = Entry{Status: StatusOnline}
	}
	for userID, seen := range t.lastSeen {
		if _, hidden := t.hidden[userID]; hidden {
			continue
		}
		if _, ok := snapshot[userID]; ok {
			continue
		}
		seenAt := seen
		snapshot[userID] = Entry{Status: StatusOffline, LastSeenAt: &seenAt}
	}
	return snapshot
}

// LastSeen returns the recorded last-seen stamp, if any.
func (t *Tracker) LastSeen(userID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen, ok := t.lastSeen[userID]
	return seen, ok
}
