package store

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/aihub/agentdesk/internal/domain"
)

// MemoryChatStore is an in-memory ChatStore with the same semantics as
// SQLiteChatStore. Contents are lost on restart.
type MemoryChatStore struct {
	mu          sync.RWMutex
	sessions    map[string]*domain.ChatSession
	maxMessages int
}

// NewMemoryChatStore creates an in-memory chat store.
func NewMemoryChatStore(maxMessages int) *MemoryChatStore {
	return &MemoryChatStore{
		sessions:    make(map[string]*domain.ChatSession),
		maxMessages: maxMessages,
	}
}

func (s *MemoryChatStore) SaveChatSession(sess *domain.ChatSession) error {
	prepareSession(sess, s.maxMessages)

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sessions[sess.ID]; ok {
		sess.CreatedAt = prev.CreatedAt
	}
	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

func (s *MemoryChatStore) GetChatSession(id string) (*domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(sess), nil
}

func (s *MemoryChatStore) GetAllChatSessions() []domain.SessionSummary {
	return s.SearchChatSessions("")
}

func (s *MemoryChatStore) LoadMessages(sessionID string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return []domain.Message{}
	}
	return cloneMessages(sess.Messages)
}

func (s *MemoryChatStore) AppendMessage(sessionID string, msg domain.Message) error {
	prepareMessage(&msg)

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	sess.Messages = append(sess.Messages, msg.Clone())
	if s.maxMessages > 0 && len(sess.Messages) > s.maxMessages {
		sess.Messages = slices.Clone(sess.Messages[len(sess.Messages)-s.maxMessages:])
	}

	text := msg.Text()
	if (sess.Title == "" || sess.Title == domain.DefaultTitle) && msg.Role == domain.RoleUser && text != "" {
		sess.Title = domain.Truncate(text, domain.TitleMaxRunes)
	}
	if text != "" {
		sess.Preview = domain.Truncate(text, domain.PreviewMaxRunes)
	}
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryChatStore) UpdateMessage(sessionID string, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	for i := range sess.Messages {
		if sess.Messages[i].ID == msg.ID {
			c := msg.Clone()
			sess.Messages[i].Content = c.Content
			sess.Messages[i].Parts = c.Parts
			sess.Messages[i].Metadata = c.Metadata
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryChatStore) DeleteChatSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryChatStore) SearchChatSessions(query string) []domain.SessionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.SessionSummary{}
	for _, sess := range s.sessions {
		sum := sess.Summary()
		if matchesQuery(sum, searchBody(sess.Messages), query) {
			out = append(out, sum)
		}
	}
	slices.SortFunc(out, func(a, b domain.SessionSummary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// cloneSession copies s deeply enough that callers can mutate the result,
// including message metadata, without touching stored state.
func cloneSession(s *domain.ChatSession) *domain.ChatSession {
	c := *s
	c.Messages = cloneMessages(s.Messages)
	return &c
}

func cloneMessages(msgs []domain.Message) []domain.Message {
	if msgs == nil {
		return nil
	}
	out := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
