package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Preference keys.
const (
	KeySelectedAgent = "selected-agent"
	KeySelectedChat  = "selected-chat"
	KeyDeviceID      = "device-id"

	agentVariablesPrefix = "agent-variables-"
	cadAnalysisPrefix    = "cad-analysis-"
)

// AgentVariablesKey is the preference key holding an agent's variable values.
func AgentVariablesKey(agentID string) string { return agentVariablesPrefix + agentID }

// CADAnalysisKey is the preference key caching a CAD analysis result.
func CADAnalysisKey(fileID string) string { return cadAnalysisPrefix + fileID }

// Preferences is a key/value store for single-slot user state.
type Preferences struct {
	db *DB
}

// NewPreferences creates a preference store using the given database.
func NewPreferences(db *DB) *Preferences {
	return &Preferences{db: db}
}

// Get returns the raw value for key.
func (p *Preferences) Get(key string) (string, bool) {
	var v string
	err := p.db.sql.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&v)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			p.db.log.Error().Err(err).Str("key", key).Msg("failed to read preference")
		}
		return "", false
	}
	return v, true
}

// Set stores value under key.
func (p *Preferences) Set(key, value string) (err error) {
	defer p.db.track("set_preference", time.Now(), &err)
	_, err = p.db.sql.Exec(
		`INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are ignored.
func (p *Preferences) Delete(key string) error {
	if _, err := p.db.sql.Exec(`DELETE FROM preferences WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete preference %s: %w", key, err)
	}
	return nil
}

// GetJSON decodes the value under key into v. Malformed values count as absent.
func (p *Preferences) GetJSON(key string, v any) bool {
	raw, ok := p.Get(key)
	if !ok {
		return false
	}
	return decodeJSON(p.db.log, key, raw, v)
}

// SetJSON encodes v and stores it under key.
func (p *Preferences) SetJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode preference %s: %w", key, err)
	}
	return p.Set(key, string(data))
}

// SaveSelectedAgent remembers the last active agent.
func (p *Preferences) SaveSelectedAgent(id string) error {
	return p.Set(KeySelectedAgent, id)
}

// LoadSelectedAgentID returns the last active agent, or "" when none was saved.
func (p *Preferences) LoadSelectedAgentID() string {
	v, _ := p.Get(KeySelectedAgent)
	return v
}

// SaveSelectedChat remembers the last open chat session.
func (p *Preferences) SaveSelectedChat(id string) error {
	return p.Set(KeySelectedChat, id)
}

// LoadSelectedChatID returns the last open chat session, or "".
func (p *Preferences) LoadSelectedChatID() string {
	v, _ := p.Get(KeySelectedChat)
	return v
}

// SaveAgentVariables stores the variable values entered for an agent.
func (p *Preferences) SaveAgentVariables(agentID string, values map[string]string) error {
	return p.SetJSON(AgentVariablesKey(agentID), values)
}

// LoadAgentVariables returns the stored variable values for an agent. The
// result is never nil.
func (p *Preferences) LoadAgentVariables(agentID string) map[string]string {
	values := map[string]string{}
	var raw map[string]any
	if !p.GetJSON(AgentVariablesKey(agentID), &raw) {
		return values
	}
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			values[k] = t
		case nil:
		default:
			values[k] = fmt.Sprint(t)
		}
	}
	return values
}

// DeviceID returns the persistent device id, generating it on first use.
func (p *Preferences) DeviceID() (string, error) {
	if v, ok := p.Get(KeyDeviceID); ok && v != "" {
		return v, nil
	}
	id := uuid.NewString()
	if err := p.Set(KeyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}
