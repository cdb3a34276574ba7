package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/aihub/agentdesk/internal/domain"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// SQLiteChatStore implements ChatStore backed by SQLite.
type SQLiteChatStore struct {
	db          *DB
	maxMessages int
}

// NewSQLiteChatStore creates a chat store using the given database. Sessions
// keep at most maxMessages messages; 0 means unlimited.
func NewSQLiteChatStore(db *DB, maxMessages int) *SQLiteChatStore {
	return &SQLiteChatStore{db: db, maxMessages: maxMessages}
}

// SaveChatSession upserts the session and replaces its messages.
func (s *SQLiteChatStore) SaveChatSession(sess *domain.ChatSession) (err error) {
	defer s.db.track("save_session", time.Now(), &err)

	prepareSession(sess, s.maxMessages)

	tx, err := s.db.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin save session: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO chat_sessions (id, agent_id, title, preview, body, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   agent_id = excluded.agent_id,
		   title = excluded.title,
		   preview = excluded.preview,
		   body = excluded.body,
		   updated_at = excluded.updated_at`,
		sess.ID, sess.AgentID, sess.Title, sess.Preview, searchBody(sess.Messages),
		sess.CreatedAt.UnixNano(), sess.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", sess.ID, err)
	}

	if _, err = tx.Exec(`DELETE FROM messages WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("clear messages %s: %w", sess.ID, err)
	}
	for _, m := range sess.Messages {
		if err = insertMessage(tx, sess.ID, m); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit session %s: %w", sess.ID, err)
	}
	return nil
}

// GetChatSession returns a session with its messages, or ErrNotFound.
func (s *SQLiteChatStore) GetChatSession(id string) (sess *domain.ChatSession, err error) {
	defer s.db.track("get_session", time.Now(), &err)

	var out domain.ChatSession
	var createdAt, updatedAt int64
	err = s.db.sql.QueryRow(
		`SELECT id, agent_id, title, preview, created_at, updated_at
		 FROM chat_sessions WHERE id = ?`, id,
	).Scan(&out.ID, &out.AgentID, &out.Title, &out.Preview, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	out.CreatedAt = fromNanos(createdAt)
	out.UpdatedAt = fromNanos(updatedAt)
	out.Messages = s.LoadMessages(id)
	return &out, nil
}

// GetAllChatSessions lists session summaries, most recently updated first.
func (s *SQLiteChatStore) GetAllChatSessions() []domain.SessionSummary {
	start := time.Now()
	rows, err := s.db.sql.Query(summarySelect + ` ORDER BY s.updated_at DESC`)
	s.db.track("list_sessions", start, &err)
	if err != nil {
		s.db.log.Error().Err(err).Msg("failed to list sessions")
		return []domain.SessionSummary{}
	}
	defer rows.Close()
	return s.scanSummaries(rows)
}

// LoadMessages returns the messages of a session in order. A missing session
// yields an empty list.
func (s *SQLiteChatStore) LoadMessages(sessionID string) []domain.Message {
	rows, err := s.db.sql.Query(
		`SELECT id, role, content, parts, metadata, timestamp
		 FROM messages WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		s.db.log.Error().Err(err).Str("session", sessionID).Msg("failed to load messages")
		return []domain.Message{}
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var role string
		var ts int64
		var parts, metadata sql.NullString

		if err := rows.Scan(&msg.ID, &role, &msg.Content, &parts, &metadata, &ts); err != nil {
			s.db.log.Warn().Err(err).Str("session", sessionID).Msg("skipping unreadable message")
			continue
		}
		msg.Role = domain.Role(role)
		msg.Timestamp = fromNanos(ts)
		if parts.Valid {
			decodeJSON(s.db.log, "parts", parts.String, &msg.Parts)
		}
		if metadata.Valid {
			var md domain.MessageMetadata
			if decodeJSON(s.db.log, "metadata", metadata.String, &md) {
				msg.Metadata = &md
			}
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		s.db.log.Error().Err(err).Str("session", sessionID).Msg("failed reading messages")
	}
	return msgs
}

// AppendMessage adds a message to an existing session and bumps its updatedAt.
func (s *SQLiteChatStore) AppendMessage(sessionID string, msg domain.Message) (err error) {
	defer s.db.track("append_message", time.Now(), &err)

	prepareMessage(&msg)

	tx, err := s.db.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var title string
	err = tx.QueryRow(`SELECT title FROM chat_sessions WHERE id = ?`, sessionID).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup session %s: %w", sessionID, err)
	}

	if err = insertMessage(tx, sessionID, msg); err != nil {
		return err
	}

	if s.maxMessages > 0 {
		_, err = tx.Exec(
			`DELETE FROM messages WHERE session_id = ? AND seq NOT IN (
			   SELECT seq FROM messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?)`,
			sessionID, sessionID, s.maxMessages,
		)
		if err != nil {
			return fmt.Errorf("trim messages %s: %w", sessionID, err)
		}
	}

	text := msg.Text()
	if (title == "" || title == domain.DefaultTitle) && msg.Role == domain.RoleUser && text != "" {
		title = domain.Truncate(text, domain.TitleMaxRunes)
	}
	preview := domain.Truncate(text, domain.PreviewMaxRunes)

	_, err = tx.Exec(
		`UPDATE chat_sessions SET
		   title = ?,
		   preview = CASE WHEN ? = '' THEN preview ELSE ? END,
		   body = CASE WHEN body = '' THEN ? ELSE body || char(10) || ? END,
		   updated_at = ?
		 WHERE id = ?`,
		title, preview, preview, text, text, time.Now().UnixNano(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("touch session %s: %w", sessionID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit append %s: %w", sessionID, err)
	}
	return nil
}

// UpdateMessage replaces the content and metadata of a stored message.
func (s *SQLiteChatStore) UpdateMessage(sessionID string, msg domain.Message) (err error) {
	defer s.db.track("update_message", time.Now(), &err)

	parts, err := encodeJSON(msg.Parts)
	if err != nil {
		return fmt.Errorf("encode parts: %w", err)
	}
	metadata, err := encodeJSON(msg.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	res, err := s.db.sql.Exec(
		`UPDATE messages SET content = ?, parts = ?, metadata = ?
		 WHERE session_id = ? AND id = ?`,
		msg.Content, parts, metadata, sessionID, msg.ID,
	)
	if err != nil {
		return fmt.Errorf("update message %s: %w", msg.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChatSession removes a session and its messages. Deleting a missing
// session is a no-op.
func (s *SQLiteChatStore) DeleteChatSession(sessionID string) (err error) {
	defer s.db.track("delete_session", time.Now(), &err)

	tx, err := s.db.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.Exec(`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete messages %s: %w", sessionID, err)
	}
	if _, err = tx.Exec(`DELETE FROM chat_sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return tx.Commit()
}

// SearchChatSessions filters sessions by a case-insensitive query over title
// and preview (substring) and message content (full-text). An empty query
// returns every session.
func (s *SQLiteChatStore) SearchChatSessions(query string) []domain.SessionSummary {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.GetAllChatSessions()
	}

	like := "%" + escapeLike(query) + "%"
	q := summarySelect + ` WHERE s.title LIKE ? ESCAPE '\' OR s.preview LIKE ? ESCAPE '\'`
	args := []any{like, like}
	if fts := ftsQuery(query); fts != "" {
		q += ` OR s.rowid IN (SELECT rowid FROM chat_fts WHERE chat_fts MATCH ?)`
		args = append(args, fts)
	}
	q += ` ORDER BY s.updated_at DESC`

	start := time.Now()
	rows, err := s.db.sql.Query(q, args...)
	s.db.track("search_sessions", start, &err)
	if err != nil {
		s.db.log.Error().Err(err).Str("query", query).Msg("session search failed")
		return []domain.SessionSummary{}
	}
	defer rows.Close()
	return s.scanSummaries(rows)
}

const summarySelect = `SELECT s.id, s.agent_id, s.title, s.preview, s.updated_at,
	(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
	FROM chat_sessions s`

func (s *SQLiteChatStore) scanSummaries(rows *sql.Rows) []domain.SessionSummary {
	out := []domain.SessionSummary{}
	for rows.Next() {
		var sum domain.SessionSummary
		var updatedAt int64
		if err := rows.Scan(&sum.ID, &sum.AgentID, &sum.Title, &sum.Preview, &updatedAt, &sum.MessageCount); err != nil {
			s.db.log.Warn().Err(err).Msg("skipping unreadable session row")
			continue
		}
		sum.UpdatedAt = fromNanos(updatedAt)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		s.db.log.Error().Err(err).Msg("failed reading sessions")
	}
	return out
}

func insertMessage(ex execer, sessionID string, m domain.Message) error {
	parts, err := encodeJSON(m.Parts)
	if err != nil {
		return fmt.Errorf("encode parts: %w", err)
	}
	metadata, err := encodeJSON(m.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = ex.Exec(
		`INSERT INTO messages (id, session_id, role, content, parts, metadata, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, sessionID, string(m.Role), m.Content, parts, metadata, m.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", m.ID, err)
	}
	return nil
}

// prepareSession assigns ids and timestamps, trims history and derives the
// title and preview.
func prepareSession(sess *domain.ChatSession, maxMessages int) {
	now := time.Now().UTC()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = now
	}
	for i := range sess.Messages {
		prepareMessage(&sess.Messages[i])
	}
	if maxMessages > 0 && len(sess.Messages) > maxMessages {
		sess.Messages = sess.Messages[len(sess.Messages)-maxMessages:]
	}
	sess.FillDerived()
}

func prepareMessage(m *domain.Message) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ftsQuery turns free text into an FTS5 prefix query. Tokens without any
// letter or digit are dropped so user input cannot produce a syntax error.
func ftsQuery(q string) string {
	var terms []string
	for _, tok := range strings.Fields(q) {
		tok = strings.ReplaceAll(tok, `"`, "")
		if !strings.ContainsFunc(tok, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
			continue
		}
		terms = append(terms, `"`+tok+`"*`)
	}
	return strings.Join(terms, " ")
}
