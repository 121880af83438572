// Package session implements the per-user session lifecycle: the store,
// the expiration sweeper, and flat-file snapshot persistence.
package session

import (
	"sync"
	"time"

	"github.com/jortega-dev/warelay/internal/domain"
	"github.com/jortega-dev/warelay/internal/logging"
)

// Store is the thread-safe mapping from WhatsApp user ID to session.
// It is the single source of truth for conversational state. A single
// mutex serializes all mutation; message volume per user is low enough
// that correctness wins over lock granularity here.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	timeout  time.Duration
	now      func() time.Time
	log      *logging.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the store's time source. Used in tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a session store. Sessions count as active while
// now < lastActivity + timeout.
func NewStore(timeout time.Duration, log *logging.Logger, opts ...StoreOption) *Store {
	s := &Store{
		sessions: make(map[string]*domain.Session),
		timeout:  timeout,
		now:      time.Now,
		log:      log.Sub("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// touch refreshes activity and clears both notice flags. Caller holds mu.
func (s *Store) touch(sess *domain.Session) {
	sess.LastActivityAt = s.now()
	sess.WarningSent = false
	sess.CloseNoticeSent = false
}

// GetOrCreate returns the user's session, refreshing its activity
// timestamp and clearing the notice flags. Unknown users get a fresh
// INITIAL session. Never fails.
func (s *Store) GetOrCreate(userID string) domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		sess = domain.NewSession(s.now())
		sess.Normalize()
		s.sessions[userID] = sess
		s.log.Info().Str("user", userID).Msg("created new session")
	} else {
		s.touch(sess)
	}
	return sess.Clone()
}

// Update is a partial field-level update. Nil fields are left untouched.
type Update struct {
	State    *domain.State
	Context  map[string]string
	ThreadID *string
}

// Apply applies a partial update to an existing session. No-op when the
// session is absent. Any update counts as activity.
func (s *Store) Apply(userID string, upd Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return
	}
	if upd.State != nil {
		sess.State = *upd.State
	}
	if upd.Context != nil {
		sess.Context = upd.Context
	}
	if upd.ThreadID != nil {
		sess.ThreadID = *upd.ThreadID
	}
	s.touch(sess)
	s.log.Debug().Str("user", userID).Msg("updated session")
}

// Restart replaces the user's session with a fresh one, preserving the
// total message count and incrementing the restart counter.
func (s *Store) Restart(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.sessions[userID]
	if !ok {
		return
	}
	fresh := domain.NewSession(s.now())
	fresh.Meta = domain.Meta{
		TotalMessages:   old.Meta.TotalMessages,
		SessionRestarts: old.Meta.SessionRestarts + 1,
	}
	s.sessions[userID] = fresh
	s.log.Info().
		Str("user", userID).
		Int("restarts", fresh.Meta.SessionRestarts).
		Msg("restarted session")
}

// Remove deletes the user's session if present.
func (s *Store) Remove(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[userID]; ok {
		delete(s.sessions, userID)
		s.log.Info().Str("user", userID).Msg("ended session")
	}
}

// IsActive reports whether the user has a session that has not timed out.
func (s *Store) IsActive(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	return s.now().Before(sess.LastActivityAt.Add(s.timeout))
}

// AppendHistory appends a conversation turn, refreshes activity, clears
// the notice flags, and bumps the total message counter.
func (s *Store) AppendHistory(userID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return
	}
	sess.History = append(sess.History, domain.HistoryEntry{
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	})
	s.touch(sess)
	sess.Meta.TotalMessages++
}

// AppendSystemNotice records a relay-generated notice (inactivity warning
// or closing message) in the history without counting as user activity:
// the activity timestamp, notice flags, and message counter are untouched.
func (s *Store) AppendSystemNotice(userID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return
	}
	sess.History = append(sess.History, domain.HistoryEntry{
		Role:      domain.RoleAssistant,
		Content:   content,
		Timestamp: s.now(),
		Type:      domain.EntryTypeSystem,
	})
}

// RecentHistory returns the last limit entries in insertion order, or
// fewer. Absent sessions yield an empty slice.
func (s *Store) RecentHistory(userID string, limit int) []domain.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return []domain.HistoryEntry{}
	}
	if limit < 0 {
		limit = 0
	}
	start := len(sess.History) - limit
	if start < 0 {
		start = 0
	}
	out := make([]domain.HistoryEntry, len(sess.History)-start)
	copy(out, sess.History[start:])
	return out
}

// ScanIdle performs the sweeper's scan under one lock acquisition.
// Sessions idle for at least closeAfter with no closing notice yet get
// their flag set and are collected for closure; otherwise sessions idle
// for at least warnAfter with no warning yet get flagged and collected
// for a warning. The flags make repeat scans idempotent until activity
// clears them.
func (s *Store) ScanIdle(warnAfter, closeAfter time.Duration) (toWarn, toClose []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for userID, sess := range s.sessions {
		idle := now.Sub(sess.LastActivityAt)
		switch {
		case idle >= closeAfter && !sess.CloseNoticeSent:
			sess.CloseNoticeSent = true
			toClose = append(toClose, userID)
		case idle >= warnAfter && !sess.WarningSent:
			sess.WarningSent = true
			toWarn = append(toWarn, userID)
		}
	}
	return toWarn, toClose
}

// Snapshot returns a deep point-in-time copy of all sessions. The lock is
// released before the caller performs any serialization I/O.
func (s *Store) Snapshot() map[string]domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]domain.Session, len(s.sessions))
	for userID, sess := range s.sessions {
		out[userID] = sess.Clone()
	}
	return out
}

// Restore merges loaded sessions into the store, defaulting missing
// fields so older snapshot formats load cleanly.
func (s *Store) Restore(data map[string]domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, sess := range data {
		loaded := sess.Clone()
		loaded.Normalize()
		s.sessions[userID] = &loaded
	}
	if len(data) > 0 {
		s.log.Info().Int("sessions", len(data)).Msg("restored sessions")
	}
}

// Stats returns the number of live sessions and the sum of their message
// counters.
func (s *Store) Stats() (sessions, messages int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		messages += sess.Meta.TotalMessages
	}
	return len(s.sessions), messages
}

// Timeout returns the configured inactivity timeout.
func (s *Store) Timeout() time.Duration {
	return s.timeout
}
