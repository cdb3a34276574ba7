package domain

import "time"

const (
	// TitleMaxRunes bounds the derived session title.
	TitleMaxRunes = 30
	// PreviewMaxRunes bounds the derived session preview.
	PreviewMaxRunes = 50
	// DefaultTitle is used when a session has no user message yet.
	DefaultTitle = "New chat"
)

// ChatSession is a persisted, ordered list of messages with one agent.
type ChatSession struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agentId"`
	Title     string    `json:"title"`
	Preview   string    `json:"preview"`
	Messages  []Message `json:"messages,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SessionSummary is the index entry used for recency listing and search.
type SessionSummary struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agentId"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview"`
	MessageCount int       `json:"messageCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Summary builds the index entry for the session.
func (s ChatSession) Summary() SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		AgentID:      s.AgentID,
		Title:        s.Title,
		Preview:      s.Preview,
		MessageCount: len(s.Messages),
		UpdatedAt:    s.UpdatedAt,
	}
}

// FillDerived sets Title and Preview from the messages when they are empty.
func (s *ChatSession) FillDerived() {
	if s.Title == "" {
		s.Title = DeriveTitle(s.Messages)
	}
	if s.Preview == "" {
		s.Preview = DerivePreview(s.Messages)
	}
}

// DeriveTitle returns the first user message truncated for display.
func DeriveTitle(msgs []Message) string {
	for _, m := range msgs {
		if m.Role == RoleUser {
			if t := m.Text(); t != "" {
				return Truncate(t, TitleMaxRunes)
			}
		}
	}
	return DefaultTitle
}

// DerivePreview returns the last message truncated for display.
func DerivePreview(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if t := msgs[i].Text(); t != "" {
			return Truncate(t, PreviewMaxRunes)
		}
	}
	return ""
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
