package domain

import "time"

// State is the conversational state of a session.
type State string

const (
	StateInitial        State = "INITIAL"
	StateAwaitingQuery  State = "AWAITING_QUERY"
	StateTicketCreation State = "TICKET_CREATION"
)

// History entry roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// EntryTypeSystem tags history entries produced by the relay itself
// (inactivity warnings, closing notices) rather than the conversation.
const EntryTypeSystem = "system"

// HistoryEntry is a single turn in a session's conversation history.
type HistoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type,omitempty"`
}

// Meta carries counters that survive session restarts. They are reset
// only when the session is deleted outright.
type Meta struct {
	TotalMessages   int `json:"total_messages"`
	SessionRestarts int `json:"session_restarts"`
}

// Session is the per-user conversational state record. The session store
// is the sole owner; all mutation goes through its operations.
type Session struct {
	CreatedAt       time.Time         `json:"created_at"`
	LastActivityAt  time.Time         `json:"last_activity"`
	State           State             `json:"state"`
	Context         map[string]string `json:"context"`
	ThreadID        string            `json:"thread_id,omitempty"`
	History         []HistoryEntry    `json:"message_history"`
	WarningSent     bool              `json:"inactivity_warning_sent"`
	CloseNoticeSent bool              `json:"closing_notice_sent"`
	Meta            Meta              `json:"meta"`
}

// NewSession returns a fresh INITIAL session stamped at now.
func NewSession(now time.Time) *Session {
	return &Session{
		CreatedAt:      now,
		LastActivityAt: now,
		State:          StateInitial,
		Context:        make(map[string]string),
		History:        []HistoryEntry{},
	}
}

// Normalize defaults any missing fields so records loaded from older
// snapshot formats behave identically to freshly created ones. It is the
// single defaulting routine applied at both creation and restore time.
func (s *Session) Normalize() {
	if s.State == "" {
		s.State = StateInitial
	}
	if s.Context == nil {
		s.Context = make(map[string]string)
	}
	if s.History == nil {
		s.History = []HistoryEntry{}
	}
	if s.Meta.TotalMessages == 0 && len(s.History) > 0 {
		s.Meta.TotalMessages = len(s.History)
	}
}

// Clone returns a deep copy safe to hand out across the store lock.
func (s *Session) Clone() Session {
	out := *s
	out.Context = make(map[string]string, len(s.Context))
	for k, v := range s.Context {
		out.Context[k] = v
	}
	out.History = make([]HistoryEntry, len(s.History))
	copy(out.History, s.History)
	return out
}
