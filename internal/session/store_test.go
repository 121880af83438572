package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jortega-dev/warelay/internal/domain"
	"github.com/jortega-dev/warelay/internal/logging"
)

// fakeClock is a manually advanced time source for store tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, timeout time.Duration) (*Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return NewStore(timeout, logging.Nop(), WithClock(clock.Now)), clock
}

func TestGetOrCreateNewUser(t *testing.T) {
	store, clock := newTestStore(t, 10*time.Minute)

	sess := store.GetOrCreate("5215550001")
	assert.Equal(t, domain.StateInitial, sess.State)
	assert.Equal(t, clock.Now(), sess.CreatedAt)
	assert.Equal(t, clock.Now(), sess.LastActivityAt)
	assert.NotNil(t, sess.Context)
	assert.Empty(t, sess.History)
	assert.Equal(t, 0, sess.Meta.TotalMessages)
}

func TestGetOrCreateRefreshesActivity(t *testing.T) {
	store, clock := newTestStore(t, 10*time.Minute)

	first := store.GetOrCreate("u1")
	clock.Advance(6 * time.Minute)
	second := store.GetOrCreate("u1")

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.LastActivityAt.After(first.LastActivityAt))
}

func TestGetOrCreateClearsNoticeFlags(t *testing.T) {
	store, clock := newTestStore(t, 10*time.Minute)

	store.GetOrCreate("u1")
	clock.Advance(6 * time.Minute)
	toWarn, _ := store.ScanIdle(5*time.Minute, 10*time.Minute)
	require.Equal(t, []string{"u1"}, toWarn)

	// Activity clears the flag so the user can be warned again later.
	sess := store.GetOrCreate("u1")
	assert.False(t, sess.WarningSent)

	clock.Advance(6 * time.Minute)
	toWarn, _ = store.ScanIdle(5*time.Minute, 10*time.Minute)
	assert.Equal(t, []string{"u1"}, toWarn)
}

func TestGetOrCreateReturnsCopy(t *testing.T) {
	store, _ := newTestStore(t, 10*time.Minute)

	sess := store.GetOrCreate("u1")
	sess.Context["k"] = "v"
	sess.State = domain.StateTicketCreation

	again := store.GetOrCreate("u1")
	assert.Empty(t, again.Context)
	assert.Equal(t, domain.StateInitial, again.State)
}

func TestApply(t *testing.T) {
	store, _ := newTestStore(t, 10*time.Minute)
	store.GetOrCreate("u1")

	state := domain.StateAwaitingQuery
	thread := "thread_abc"
	store.Apply("u1", Update{
		State:    &state,
		Context:  map[string]string{"ticket_subject": "impresora"},
		ThreadID: &thread,
	})

	sess := store.GetOrCreate("u1")
	assert.Equal(t, domain.StateAwaitingQuery, sess.State)
	assert.Equal(t, "impresora", sess.Context["ticket_subject"])
	assert.Equal(t, "thread_abc", sess.ThreadID)
}

func TestApplyPartial(t *testing.T) {
	store, _ := newTestStore(t, 10*time.Minute)
	store.GetOrCreate("u1")

	state := domain.StateTicketCreation
	store.Apply("u1", Update{
		State:   &state,
		Context: map[string]string{"ticket_subject": "vpn"},
	})

	// Only the state changes; context and thread stay.
	next := domain.StateAwaitingQuery
	store.Apply("u1", Update{State: &next})

	sess := store.GetOrCreate("u1")
	assert.Equal(t, domain.StateAwaitingQuery, sess.State)
	assert.Equal(t, "vpn", sess.Context["ticket_subject"])
}

func TestApplyUnknownUser(t *testing.T) {
	store, _ := newTestStore(t, 10*time.Minute)

	state := domain.StateAwaitingQuery
	store.Apply("nobody", Update{State: &state})

	sessions, _ := store.Stats()
	assert.Equal(t, 0, sessions)
}

func TestRestartPreservesCounters(t *testing.T) {
	store, _ := newTestStore(t, 10*time.Minute)
	store.GetOrCreate("u1")
	store.AppendHistory("u1", domain.RoleUser, "hola")
	store.AppendHistory("u1", domain.RoleAssistant, "¡Hola!")

	store.Restart("u1")

	sess := store.GetOrCreate("u1")
	assert.Equal(t, domain.StateInitial, sess.State)
	assert.Empty(t, sess.History)
	assert.Empty(t, sess.ThreadID)
	assert.Equal(t, 2, sess.Meta.TotalMessages)
	assert.Equal(t, 1, sess.Meta.SessionRestarts)

	store.Restart("u1")
	sess = store.GetOrCreate("u1")
	assert.Equal(t, 2, sess.Meta.SessionRestarts)
}

func TestRemove(t *testing.T) {
	store, _ := newTestStore(t, 10*time.Minute)
	store.GetOrCreate("u1")

	store.Remove("u1")
	assert.False(t, store.IsActive("u1"))

	// Removing twice is a no-op.
	store.Remove("u1")
	sessions, _ := store.Stats()
	assert.Equal(t, 0, sessions)
}

func TestIsActive(t *testing.T) {
	store, clock := newTestStore(t, 10*time.Minute)

	assert.False(t, store.IsActive("u1"))

	store.GetOrCreate("u1")
	assert.True(t, store.IsActive("u1"))

	clock.Advance(9 * time.Minute)
	assert.True(t, store.IsActive("u1"))

	clock.Advance(time.Minute)
	assert.False(t, store.IsActive("u1"))
}

func TestAppendHistory(t *testing.T) {
	store, clock := newTestStore(t, 10*time.Minute)
	store.GetOrCreate("u1")
	clock.Advance(time.Minute)

	store.AppendHistory("u1", domain.RoleUser, "necesito ayuda")

	sess := store.GetOrCreate("u1")
	require.Len(t, sess.History, 1)
	assert.Equal(t, domain.RoleUser, sess.History[0].Role)
	assert.Equal(t, "necesito ayuda", sess.History[0].Content)
	assert.Empty(t, sess.History[0].Type)
	assert.Equal(t, 1, sess.Meta.TotalMessages)
}

func TestAppendSystemNoticeDoesNotTouch(t *testing.T) {
	store, clock := newTestStore(t, 10*time.Minute)
	store.GetOrCreate("u1")

	clock.Advance(6 * time.Minute)
	toWarn, _ := store.ScanIdle(5*time.Minute, 10*time.Minute)
	require.Len(t, toWarn, 1)

	store.AppendSystemNotice("u1", "¿Sigues ahí?")

	// The notice is history but not activity: the session still expires.
	clock.Advance(4 * time.Minute)
	assert.False(t, store.IsActive("u1"))

	sess := store.GetOrCreate("u1")
	require.Len(t, sess.History, 1)
	assert.Equal(t, domain.EntryTypeSystem, sess.History[0].Type)
	assert.Equal(t, domain.RoleAssistant, sess.History[0].Role)
	assert.Equal(t, 0, sess.Meta.TotalMessages)
}

func TestRecentHistory(t *testing.T) {
	store, _ := newTestStore(t, 10*time.Minute)
	store.GetOrCreate("u1")
	store.AppendHistory("u1", domain.RoleUser, "uno")
	store.AppendHistory("u1", domain.RoleAssistant, "dos")
	store.AppendHistory("u1", domain.RoleUser, "tres")

	last2 := store.RecentHistory("u1", 2)
	require.Len(t, last2, 2)
	assert.Equal(t, "dos", last2[0].Content)
	assert.Equal(t, "tres", last2[1].Content)

	all := store.RecentHistory("u1", 10)
	assert.Len(t, all, 3)

	assert.Empty(t, store.RecentHistory("nobody", 5))
	assert.Empty(t, store.RecentHistory("u1", -1))
	assert.Empty(t, store.RecentHistory("u1", 0))
}

func TestScanIdleThresholds(t *testing.T) {
	store, clock := newTestStore(t, 10*time.Minute)
	store.GetOrCreate("fresh")
	store.GetOrCreate("warned")
	store.GetOrCreate("expired")

	clock.Advance(5 * time.Minute)
	store.GetOrCreate("fresh") // refresh

	clock.Advance(time.Minute) // warned, expired idle 6m; fresh idle 1m
	toWarn, toClose := store.ScanIdle(5*time.Minute, 10*time.Minute)
	assert.ElementsMatch(t, []string{"warned", "expired"}, toWarn)
	assert.Empty(t, toClose)

	clock.Advance(5 * time.Minute) // warned, expired idle 11m; fresh idle 6m
	toWarn, toClose = store.ScanIdle(5*time.Minute, 10*time.Minute)
	assert.ElementsMatch(t, []string{"fresh"}, toWarn)
	assert.ElementsMatch(t, []string{"warned", "expired"}, toClose)
}

func TestScanIdleIdempotent(t *testing.T) {
	store, clock := newTestStore(t, 10*time.Minute)
	store.GetOrCreate("u1")

	clock.Advance(6 * time.Minute)
	toWarn, _ := store.ScanIdle(5*time.Minute, 10*time.Minute)
	require.Len(t, toWarn, 1)

	// Same scan again: flag already set, nothing collected.
	toWarn, toClose := store.ScanIdle(5*time.Minute, 10*time.Minute)
	assert.Empty(t, toWarn)
	assert.Empty(t, toClose)

	clock.Advance(5 * time.Minute)
	_, toClose = store.ScanIdle(5*time.Minute, 10*time.Minute)
	require.Len(t, toClose, 1)

	_, toClose = store.ScanIdle(5*time.Minute, 10*time.Minute)
	assert.Empty(t, toClose)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	store, _ := newTestStore(t, 10*time.Minute)
	store.GetOrCreate("u1")
	store.AppendHistory("u1", domain.RoleUser, "hola")
	state := domain.StateAwaitingQuery
	thread := "thread_1"
	store.Apply("u1", Update{State: &state, ThreadID: &thread})

	snap := store.Snapshot()
	require.Len(t, snap, 1)

	restored, _ := newTestStore(t, 10*time.Minute)
	restored.Restore(snap)

	sess := restored.GetOrCreate("u1")
	assert.Equal(t, domain.StateAwaitingQuery, sess.State)
	assert.Equal(t, "thread_1", sess.ThreadID)
	require.Len(t, sess.History, 1)
	assert.Equal(t, "hola", sess.History[0].Content)
	assert.Equal(t, 1, sess.Meta.TotalMessages)
}

func TestRestoreDefaultsOldFormats(t *testing.T) {
	store, _ := newTestStore(t, 10*time.Minute)

	store.Restore(map[string]domain.Session{
		"legacy": {
			History: []domain.HistoryEntry{
				{Role: domain.RoleUser, Content: "hola"},
				{Role: domain.RoleAssistant, Content: "¡Hola!"},
			},
		},
	})

	sess := store.GetOrCreate("legacy")
	assert.Equal(t, domain.StateInitial, sess.State)
	assert.NotNil(t, sess.Context)
	assert.Equal(t, 2, sess.Meta.TotalMessages)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	store, _ := newTestStore(t, 10*time.Minute)
	store.GetOrCreate("u1")

	snap := store.Snapshot()
	entry := snap["u1"]
	entry.Context["mutated"] = "yes"

	sess := store.GetOrCreate("u1")
	assert.Empty(t, sess.Context)
}

func TestStats(t *testing.T) {
	store, _ := newTestStore(t, 10*time.Minute)
	store.GetOrCreate("u1")
	store.GetOrCreate("u2")
	store.AppendHistory("u1", domain.RoleUser, "a")
	store.AppendHistory("u1", domain.RoleAssistant, "b")
	store.AppendHistory("u2", domain.RoleUser, "c")

	sessions, messages := store.Stats()
	assert.Equal(t, 2, sessions)
	assert.Equal(t, 3, messages)
}

func TestConcurrentAppends(t *testing.T) {
	store, _ := newTestStore(t, 10*time.Minute)
	store.GetOrCreate("u1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.AppendHistory("u1", domain.RoleUser, "msg")
		}()
	}
	wg.Wait()

	sess := store.GetOrCreate("u1")
	assert.Len(t, sess.History, 50)
	assert.Equal(t, 50, sess.Meta.TotalMessages)
}
