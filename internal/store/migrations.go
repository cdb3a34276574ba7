package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// Timestamps are stored as unix nanoseconds so recency ordering is a plain
// integer comparison.

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create chat sessions and messages",
		SQL: `
			CREATE TABLE chat_sessions (
				id          TEXT PRIMARY KEY,
				agent_id    TEXT NOT NULL DEFAULT '',
				title       TEXT NOT NULL DEFAULT '',
				preview     TEXT NOT NULL DEFAULT '',
				body        TEXT NOT NULL DEFAULT '',
				created_at  INTEGER NOT NULL,
				updated_at  INTEGER NOT NULL
			);

			CREATE INDEX idx_chat_sessions_updated ON chat_sessions (updated_at DESC);
			CREATE INDEX idx_chat_sessions_agent ON chat_sessions (agent_id);

			CREATE TABLE messages (
				seq         INTEGER PRIMARY KEY AUTOINCREMENT,
				id          TEXT NOT NULL,
				session_id  TEXT NOT NULL,
				role        TEXT NOT NULL,
				content     TEXT NOT NULL DEFAULT '',
				parts       TEXT,
				metadata    TEXT,
				timestamp   INTEGER NOT NULL,
				FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
			);

			CREATE INDEX idx_messages_session ON messages (session_id, seq);
			CREATE UNIQUE INDEX idx_messages_id ON messages (session_id, id);
		`,
	},
	{
		Version: 2,
		Name:    "create chat search index with FTS5",
		SQL: `
			CREATE VIRTUAL TABLE chat_fts USING fts5(
				title,
				preview,
				body,
				content='chat_sessions',
				content_rowid='rowid'
			);

			CREATE TRIGGER chat_sessions_ai AFTER INSERT ON chat_sessions BEGIN
				INSERT INTO chat_fts(rowid, title, preview, body)
				VALUES (new.rowid, new.title, new.preview, new.body);
			END;

			CREATE TRIGGER chat_sessions_ad AFTER DELETE ON chat_sessions BEGIN
				INSERT INTO chat_fts(chat_fts, rowid, title, preview, body)
				VALUES ('delete', old.rowid, old.title, old.preview, old.body);
			END;

			CREATE TRIGGER chat_sessions_au AFTER UPDATE ON chat_sessions BEGIN
				INSERT INTO chat_fts(chat_fts, rowid, title, preview, body)
				VALUES ('delete', old.rowid, old.title, old.preview, old.body);
				INSERT INTO chat_fts(rowid, title, preview, body)
				VALUES (new.rowid, new.title, new.preview, new.body);
			END;
		`,
	},
	{
		Version: 3,
		Name:    "create agents",
		SQL: `
			CREATE TABLE agents (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				position    INTEGER NOT NULL DEFAULT 0,
				published   INTEGER NOT NULL DEFAULT 0,
				data        TEXT NOT NULL,
				created_at  INTEGER NOT NULL,
				updated_at  INTEGER NOT NULL
			);

			CREATE INDEX idx_agents_position ON agents (position, name);
		`,
	},
	{
		Version: 4,
		Name:    "create preferences",
		SQL: `
			CREATE TABLE preferences (
				key         TEXT PRIMARY KEY,
				value       TEXT NOT NULL,
				updated_at  INTEGER NOT NULL
			);
		`,
	},
}
