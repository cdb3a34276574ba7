package store

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/aihub/agentdesk/internal/domain"
	"github.com/aihub/agentdesk/internal/logging"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ChatStore persists chat sessions. Read operations are best effort: failures
// are logged and reported as empty results.
type ChatStore interface {
	SaveChatSession(s *domain.ChatSession) error
	GetChatSession(id string) (*domain.ChatSession, error)
	GetAllChatSessions() []domain.SessionSummary
	LoadMessages(sessionID string) []domain.Message
	AppendMessage(sessionID string, msg domain.Message) error
	UpdateMessage(sessionID string, msg domain.Message) error
	DeleteChatSession(sessionID string) error
	SearchChatSessions(query string) []domain.SessionSummary
}

// decodeJSON unmarshals a stored blob into v. Malformed blobs are passed
// through jsonrepair once; if that still fails the blob is treated as absent.
func decodeJSON(log *logging.Logger, field, blob string, v any) bool {
	if strings.TrimSpace(blob) == "" {
		return false
	}
	err := json.Unmarshal([]byte(blob), v)
	if err == nil {
		return true
	}
	repaired, rerr := jsonrepair.JSONRepair(blob)
	if rerr == nil {
		if err2 := json.Unmarshal([]byte(repaired), v); err2 == nil {
			log.Debug().Str("field", field).Msg("repaired malformed stored json")
			return true
		}
	}
	log.Warn().Err(err).Str("field", field).Msg("discarding malformed stored json")
	return false
}

// encodeJSON marshals v for storage; nil-ish values are stored as NULL.
func encodeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	switch string(data) {
	case "null", "[]", "{}":
		return nil, nil
	}
	return string(data), nil
}

// searchBody is the text indexed for full-text search of a session.
func searchBody(msgs []domain.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		if t := m.Text(); t != "" {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(t)
		}
	}
	return sb.String()
}

// matchesQuery reports whether a session matches a case-insensitive substring query.
func matchesQuery(s domain.SessionSummary, body, q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s.Title), q) ||
		strings.Contains(strings.ToLower(s.Preview), q) ||
		strings.Contains(strings.ToLower(body), q)
}
