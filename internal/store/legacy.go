package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/aihub/agentdesk/internal/domain"
)

// legacyTime accepts RFC 3339 strings, SQL-style datetimes, and epoch
// seconds or milliseconds as numbers or numeric strings.
type legacyTime struct{ time.Time }

func (t *legacyTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		t.Time = parseLegacyTime(s)
		return nil
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return nil
	}
	t.Time = epochTime(n)
	return nil
}

func parseLegacyTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateTime, "2006-01-02T15:04:05", time.DateOnly} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return epochTime(n)
	}
	return time.Time{}
}

// epochTime treats values past 1e12 as milliseconds.
func epochTime(n float64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}

type legacyPart struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

type legacyMessage struct {
	ID        string                  `json:"id"`
	Role      string                  `json:"role"`
	Content   json.RawMessage         `json:"content"`
	Timestamp legacyTime              `json:"timestamp"`
	Metadata  *domain.MessageMetadata `json:"metadata"`
}

type legacySession struct {
	ID          string          `json:"id"`
	AgentID     string          `json:"agentId"`
	Title       string          `json:"title"`
	Preview     string          `json:"preview"`
	Messages    []legacyMessage `json:"messages"`
	CreatedAt   legacyTime      `json:"createdAt"`
	UpdatedAt   legacyTime      `json:"updatedAt"`
	LastUpdated legacyTime      `json:"lastUpdated"`
	Timestamp   legacyTime      `json:"timestamp"`
}

// DecodeLegacySessions parses chat history exported from the browser client.
// The input is either an array of sessions or an object keyed by session id.
// Malformed JSON is repaired when possible.
func DecodeLegacySessions(data []byte) ([]domain.ChatSession, error) {
	raw := bytes.TrimSpace(data)
	if !json.Valid(raw) {
		repaired, err := jsonrepair.JSONRepair(string(raw))
		if err != nil {
			return nil, fmt.Errorf("repair legacy export: %w", err)
		}
		raw = []byte(repaired)
	}

	var list []legacySession
	if len(raw) > 0 && raw[0] == '{' {
		var byID map[string]legacySession
		if err := json.Unmarshal(raw, &byID); err != nil {
			return nil, fmt.Errorf("decode legacy export: %w", err)
		}
		for id, s := range byID {
			if s.ID == "" {
				s.ID = id
			}
			list = append(list, s)
		}
	} else if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode legacy export: %w", err)
	}

	out := make([]domain.ChatSession, 0, len(list))
	for _, ls := range list {
		out = append(out, ls.toDomain())
	}
	return out, nil
}

func (ls legacySession) toDomain() domain.ChatSession {
	s := domain.ChatSession{
		ID:        ls.ID,
		AgentID:   ls.AgentID,
		Title:     ls.Title,
		Preview:   ls.Preview,
		CreatedAt: ls.CreatedAt.Time,
		UpdatedAt: firstNonZero(ls.UpdatedAt.Time, ls.LastUpdated.Time, ls.Timestamp.Time),
	}
	for _, lm := range ls.Messages {
		m := domain.Message{
			ID:        lm.ID,
			Role:      domain.Role(lm.Role),
			Timestamp: lm.Timestamp.Time,
			Metadata:  lm.Metadata,
		}
		m.Content, m.Parts = legacyContent(lm.Content)
		s.Messages = append(s.Messages, m)
	}
	if s.UpdatedAt.IsZero() && len(s.Messages) > 0 {
		s.UpdatedAt = s.Messages[len(s.Messages)-1].Timestamp
	}
	if s.CreatedAt.IsZero() && len(s.Messages) > 0 {
		s.CreatedAt = s.Messages[0].Timestamp
	}
	return s
}

// legacyContent splits message content that may be a plain string or an
// array of multimodal parts.
func legacyContent(raw json.RawMessage) (string, []domain.ContentPart) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var parts []legacyPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return string(raw), nil
	}
	out := make([]domain.ContentPart, 0, len(parts))
	for _, p := range parts {
		cp := domain.ContentPart{Type: domain.PartType(p.Type), Text: p.Text, URL: p.URL, Name: p.Name}
		if p.ImageURL != nil && cp.URL == "" {
			cp.URL = p.ImageURL.URL
		}
		out = append(out, cp)
	}
	return "", out
}

func firstNonZero(ts ...time.Time) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}
