package types

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one utterance in a session's conversation history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Mode      Mode      `json:"mode"`
	Image     string    `json:"image,omitempty"` // data URI, user turns only
}

// HistoryEntry is the reduced turn shape forwarded to the analysis gateway.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is the durable unit of conversation state keyed by a
// client-supplied identifier.
type Session struct {
	ID                  string    `json:"id"`
	Mode                Mode      `json:"mode"`
	History             []Turn    `json:"history"`
	LastDetectedObjects []string  `json:"last_detected_objects,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NewSession returns an empty session for id.
func NewSession(id string, mode Mode) *Session {
	return &Session{ID: id, Mode: mode, History: []Turn{}}
}

// Clone returns a deep copy so stores and callers never share slices.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.History = CloneTurns(s.History)
	if s.LastDetectedObjects != nil {
		out.LastDetectedObjects = append([]string(nil), s.LastDetectedObjects...)
	}
	return &out
}

// CloneTurns copies a history. A nil input yields an empty, non-nil slice.
func CloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Window returns the last n turns reduced to role and content. Images and
// timestamps are dropped to bound gateway payload size.
func Window(turns []Turn, n int) []HistoryEntry {
	if n <= 0 || len(turns) == 0 {
		return []HistoryEntry{}
	}
	start := len(turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]HistoryEntry, 0, len(turns)-start)
	for _, t := range turns[start:] {
		out = append(out, HistoryEntry{Role: t.Role, Content: t.Content})
	}
	return out
}
