package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const grace = 12 * time.Second

func newTestTracker() (*Tracker, *clock.Mock) {
	clk := clock.NewMock()
	return NewTracker(clk, grace), clk
}

func TestMarkOnlineFirstSessionEdge(t *testing.T) {
	tr, _ := newTestTracker()

	assert.True(t, tr.MarkOnline("alice"), "0→1 edge should report first session")
	assert.False(t, tr.MarkOnline("alice"), "second device is not a first session")
	assert.True(t, tr.IsOnline("alice"))
}

func TestOfflineIsImmediateButAnnouncementIsDeferred(t *testing.T) {
	tr, clk := newTestTracker()

	var fired int
	tr.MarkOnline("alice")
	tr.MarkOffline("alice", func(userID string, lastSeen time.Time) {
		fired++
	})

	// The table entry is gone right away even though the callback waits.
	assert.False(t, tr.IsOnline("alice"))
	assert.Zero(t, fired)

	clk.Add(grace - time.Millisecond)
	assert.Zero(t, fired)

	clk.Add(time.Millisecond)
	assert.Equal(t, 1, fired)

	seen, ok := tr.LastSeen("alice")
	require.True(t, ok)
	assert.Equal(t, clk.Now(), seen)
}

func TestReconnectWithinGraceSuppressesOffline(t *testing.T) {
	tr, clk := newTestTracker()

	var fired int
	tr.MarkOnline("alice")
	tr.MarkOffline("alice", func(string, time.Time) { fired++ })

	clk.Add(grace / 2)
	assert.True(t, tr.MarkOnline("alice"), "reconnect after count hit zero is a fresh first session")

	clk.Add(grace * 3)
	assert.Zero(t, fired, "reconnect must cancel the pending offline announcement")
	assert.True(t, tr.IsOnline("alice"))

	_, ok := tr.LastSeen("alice")
	assert.False(t, ok, "no stale last-seen while truly online")
}

func TestOfflineTimerIsReplacedNotStacked(t *testing.T) {
	tr, clk := newTestTracker()

	var fired int
	onFinal := func(string, time.Time) { fired++ }

	tr.MarkOnline("alice")
	tr.MarkOffline("alice", onFinal)
	clk.Add(grace / 2)
	tr.MarkOnline("alice")
	tr.MarkOffline("alice", onFinal)

	clk.Add(grace * 2)
	assert.Equal(t, 1, fired, "exactly one pending job per user")
}

func TestSecondDeviceKeepsUserOnline(t *testing.T) {
	tr, clk := newTestTracker()

	var fired int
	tr.MarkOnline("alice")
	tr.MarkOnline("alice")

	tr.MarkOffline("alice", func(string, time.Time) { fired++ })
	assert.True(t, tr.IsOnline("alice"), "one device left")

	clk.Add(grace * 2)
	assert.Zero(t, fired)

	tr.MarkOffline("alice", func(string, time.Time) { fired++ })
	clk.Add(grace)
	assert.Equal(t, 1, fired)
}

func TestMarkOfflineUnknownUserIsTotal(t *testing.T) {
	tr, clk := newTestTracker()

	tr.MarkOffline("ghost", func(string, time.Time) {
		t.Fatal("callback must not run for an unknown user")
	})
	clk.Add(grace * 2)
	assert.False(t, tr.IsOnline("ghost"))
}

func TestConcurrentConnectDisconnectNeverGoesNegative(t *testing.T) {
	tr, clk := newTestTracker()

	const pairs = 100
	var wg sync.WaitGroup
	for i := 0; i < pairs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.MarkOnline("alice")
			tr.MarkOffline("alice", nil)
		}()
	}
	wg.Wait()

	// Net of connects − disconnects is zero, so the user must be offline.
	assert.False(t, tr.IsOnline("alice"))
	clk.Add(grace * 2)
	assert.False(t, tr.IsOnline("alice"))
}

func TestHiddenUserIsNeverVisiblyOnline(t *testing.T) {
	tr, _ := newTestTracker()

	tr.MarkOnline("alice")
	tr.SetHidden("alice", true)

	assert.True(t, tr.IsOnline("alice"))
	assert.True(t, tr.IsHidden("alice"))
	assert.False(t, tr.IsVisibleOnline("alice"))

	tr.SetHidden("alice", false)
	assert.True(t, tr.IsVisibleOnline("alice"))
}

func TestSnapshotListsOnlineAndRecentlyOffline(t *testing.T) {
	tr, clk := newTestTracker()

	tr.MarkOnline("alice")
	tr.MarkOnline("bob")
	tr.MarkOffline("bob", nil)
	clk.Add(grace)

	tr.MarkOnline("carol")
	tr.SetHidden("carol", true)

	snapshot := tr.Snapshot()

	require.Contains(t, snapshot, "alice")
	assert.Equal(t, StatusOnline, snapshot["alice"].Status)
	assert.Nil(t, snapshot["alice"].LastSeenAt)

	require.Contains(t, snapshot, "bob")
	assert.Equal(t, StatusOffline, snapshot["bob"].Status)
	require.NotNil(t, snapshot["bob"].LastSeenAt)

	assert.NotContains(t, snapshot, "carol", "hidden users stay out of the snapshot")
}

func TestOnlineUsers(t *testing.T) {
	tr, _ := newTestTracker()

	tr.MarkOnline("alice")
	tr.MarkOnline("bob")
	tr.MarkOffline("bob", nil)

	assert.ElementsMatch(t, []string{"alice"}, tr.OnlineUsers())
}
