package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aihub/agentdesk/internal/domain"
)

// ErrConflict is returned when creating a record whose id already exists.
var ErrConflict = errors.New("store: already exists")

// AgentStore persists agent definitions. The full agent is stored as JSON;
// ordering and publication state are mirrored into columns for queries.
type AgentStore struct {
	db *DB
}

// NewAgentStore creates an agent store using the given database.
func NewAgentStore(db *DB) *AgentStore {
	return &AgentStore{db: db}
}

// List returns all agents ordered by display order, then name.
func (s *AgentStore) List() (agents []domain.Agent, err error) {
	defer s.db.track("list_agents", time.Now(), &err)

	rows, err := s.db.sql.Query(
		`SELECT id, position, published, data, created_at, updated_at
		 FROM agents ORDER BY position, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	agents = []domain.Agent{}
	for rows.Next() {
		a, err := s.scanAgent(rows)
		if err != nil {
			s.db.log.Warn().Err(err).Msg("skipping unreadable agent row")
			continue
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// Get returns one agent or ErrNotFound.
func (s *AgentStore) Get(id string) (*domain.Agent, error) {
	row := s.db.sql.QueryRow(
		`SELECT id, position, published, data, created_at, updated_at
		 FROM agents WHERE id = ?`, id,
	)
	a, err := s.scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	return &a, nil
}

// Create inserts a new agent, assigning an id when empty. New agents without
// an explicit order are placed last.
func (s *AgentStore) Create(a *domain.Agent) (err error) {
	defer s.db.track("create_agent", time.Now(), &err)

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Type == "" {
		a.Type = domain.AgentTypeFastGPT
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Order == 0 {
		var maxPos sql.NullInt64
		if err = s.db.sql.QueryRow(`SELECT MAX(position) FROM agents`).Scan(&maxPos); err != nil {
			return fmt.Errorf("agent position: %w", err)
		}
		if maxPos.Valid {
			a.Order = int(maxPos.Int64) + 1
		}
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode agent: %w", err)
	}
	res, err := s.db.sql.Exec(
		`INSERT INTO agents (id, name, position, published, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		a.ID, a.Name, a.Order, a.IsPublished, string(data), now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert agent %s: %w", a.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// Update replaces an existing agent.
func (s *AgentStore) Update(a *domain.Agent) (err error) {
	defer s.db.track("update_agent", time.Now(), &err)

	a.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode agent: %w", err)
	}
	res, err := s.db.sql.Exec(
		`UPDATE agents SET name = ?, position = ?, published = ?, data = ?, updated_at = ?
		 WHERE id = ?`,
		a.Name, a.Order, a.IsPublished, string(data), a.UpdatedAt.UnixNano(), a.ID,
	)
	if err != nil {
		return fmt.Errorf("update agent %s: %w", a.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an agent. Deleting a missing agent returns ErrNotFound.
func (s *AgentStore) Delete(id string) error {
	res, err := s.db.sql.Exec(`DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Reorder assigns display order by position in ids. Unknown ids are ignored.
func (s *AgentStore) Reorder(ids []string) error {
	agents := make([]*domain.Agent, 0, len(ids))
	for _, id := range ids {
		a, err := s.Get(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		agents = append(agents, a)
	}
	for i, a := range agents {
		a.Order = i
		if err := s.Update(a); err != nil {
			return err
		}
	}
	return nil
}

// SetPublished toggles whether an agent is visible to chat users.
func (s *AgentStore) SetPublished(id string, published bool) error {
	a, err := s.Get(id)
	if err != nil {
		return err
	}
	a.IsPublished = published
	return s.Update(a)
}

// Seed inserts agents that do not exist yet and returns how many were added.
// Existing agents are left untouched so edits made at runtime survive restarts.
func (s *AgentStore) Seed(agents []domain.Agent) (int, error) {
	added := 0
	for i := range agents {
		a := agents[i]
		err := s.Create(&a)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return added, err
		}
		added++
	}
	if added > 0 {
		s.db.log.Info().Int("count", added).Msg("seeded agents from config")
	}
	return added, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *AgentStore) scanAgent(row rowScanner) (domain.Agent, error) {
	var a domain.Agent
	var id, data string
	var position int
	var published bool
	var createdAt, updatedAt int64
	if err := row.Scan(&id, &position, &published, &data, &createdAt, &updatedAt); err != nil {
		return a, err
	}
	decodeJSON(s.db.log, "agent", data, &a)
	a.ID = id
	a.Order = position
	a.IsPublished = published
	a.CreatedAt = fromNanos(createdAt)
	a.UpdatedAt = fromNanos(updatedAt)
	return a, nil
}
