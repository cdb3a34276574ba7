package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aihub/agentdesk/internal/domain"
	"github.com/aihub/agentdesk/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// chatStores returns every ChatStore implementation so behaviour tests run
// against both.
func chatStores(t *testing.T, maxMessages int) map[string]ChatStore {
	t.Helper()
	return map[string]ChatStore{
		"sqlite": NewSQLiteChatStore(testDB(t), maxMessages),
		"memory": NewMemoryChatStore(maxMessages),
	}
}

func ids(sums []domain.SessionSummary) []string {
	out := []string{}
	for _, s := range sums {
		out = append(out, s.ID)
	}
	return out
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, v)
}

func TestOpen_FileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "agentdesk.db")
	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)

	// Reopening finds every migration applied.
	db, err = Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	defer db.Close()
	var names []string
	rows, err := db.sql.Query("SELECT name FROM schema_migrations ORDER BY version")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.Len(t, names, len(migrations))
	assert.Equal(t, migrations[0].Name, names[0])
}

func TestMigrations_Applied(t *testing.T) {
	db := testDB(t)

	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)

	// Running migrate again should be a no-op
	err := db.migrate()
	require.NoError(t, err)

	var count int
	err = db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)

	tables := []string{"chat_sessions", "messages", "chat_fts", "agents", "preferences"}
	for _, table := range tables {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

type recordingObserver struct {
	ops []string
}

func (r *recordingObserver) ObserveStoreOp(op string, _ time.Duration, _ error) {
	r.ops = append(r.ops, op)
}

func TestDB_Observer(t *testing.T) {
	db := testDB(t)
	obs := &recordingObserver{}
	db.SetObserver(obs)

	cs := NewSQLiteChatStore(db, 0)
	require.NoError(t, cs.SaveChatSession(&domain.ChatSession{ID: "s1"}))
	cs.GetAllChatSessions()

	assert.Equal(t, []string{"save_session", "list_sessions"}, obs.ops)

	db.SetObserver(nil)
	cs.GetAllChatSessions()
	assert.Len(t, obs.ops, 2)
}

// --- Chat store tests ---

func TestChatStore_SavedSessionListedUntilDeleted(t *testing.T) {
	for name, cs := range chatStores(t, 0) {
		t.Run(name, func(t *testing.T) {
			sess := &domain.ChatSession{
				AgentID:  "agent-1",
				Messages: []domain.Message{{Role: domain.RoleUser, Content: "hello there"}},
			}
			require.NoError(t, cs.SaveChatSession(sess))
			require.NotEmpty(t, sess.ID)

			assert.Contains(t, ids(cs.GetAllChatSessions()), sess.ID)

			require.NoError(t, cs.DeleteChatSession(sess.ID))
			assert.NotContains(t, ids(cs.GetAllChatSessions()), sess.ID)
			assert.Empty(t, cs.LoadMessages(sess.ID))

			_, err := cs.GetChatSession(sess.ID)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestChatStore_EmptyListIsNotNil(t *testing.T) {
	for name, cs := range chatStores(t, 0) {
		t.Run(name, func(t *testing.T) {
			list := cs.GetAllChatSessions()
			assert.NotNil(t, list)
			assert.Empty(t, list)

			msgs := cs.LoadMessages("missing")
			assert.NotNil(t, msgs)
			assert.Empty(t, msgs)
		})
	}
}

func TestChatStore_OrderedByUpdatedAt(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for name, cs := range chatStores(t, 0) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, cs.SaveChatSession(&domain.ChatSession{ID: "old", UpdatedAt: base}))
			require.NoError(t, cs.SaveChatSession(&domain.ChatSession{ID: "new", UpdatedAt: base.Add(time.Hour)}))
			require.NoError(t, cs.SaveChatSession(&domain.ChatSession{ID: "mid", UpdatedAt: base.Add(time.Minute)}))

			list := cs.GetAllChatSessions()
			assert.Equal(t, []string{"new", "mid", "old"}, ids(list))
			assert.True(t, list[0].UpdatedAt.Equal(base.Add(time.Hour)))
		})
	}
}

func TestChatStore_DerivesTitleAndPreview(t *testing.T) {
	for name, cs := range chatStores(t, 0) {
		t.Run(name, func(t *testing.T) {
			sess := &domain.ChatSession{
				ID: "s1",
				Messages: []domain.Message{
					{Role: domain.RoleUser, Content: "How do I configure the attendance terminal network?"},
					{Role: domain.RoleAssistant, Content: "Open the device menu and choose Comm."},
				},
			}
			require.NoError(t, cs.SaveChatSession(sess))

			list := cs.GetAllChatSessions()
			require.Len(t, list, 1)
			assert.Equal(t, "How do I configure the atte...", list[0].Title)
			assert.Equal(t, "Open the device menu and choose Comm.", list[0].Preview)
			assert.Equal(t, 2, list[0].MessageCount)
		})
	}
}

func TestChatStore_LoadMessagesKeepsOrderAndMetadata(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC)
	for name, cs := range chatStores(t, 0) {
		t.Run(name, func(t *testing.T) {
			sess := &domain.ChatSession{
				ID: "s1",
				Messages: []domain.Message{
					{ID: "m1", Role: domain.RoleUser, Content: "first", Timestamp: ts},
					{ID: "m2", Role: domain.RoleUser, Parts: []domain.ContentPart{
						{Type: domain.PartText, Text: "see image"},
						{Type: domain.PartImage, URL: "https://example.com/a.png"},
					}},
					{ID: "m3", Role: domain.RoleAssistant, Content: "answer", Metadata: &domain.MessageMetadata{
						ResponseID:      "resp-1",
						ProcessingSteps: []domain.ProcessingStep{{Name: "chat"}},
					}},
				},
			}
			require.NoError(t, cs.SaveChatSession(sess))

			msgs := cs.LoadMessages("s1")
			require.Len(t, msgs, 3)
			assert.Equal(t, "m1", msgs[0].ID)
			assert.True(t, msgs[0].Timestamp.Equal(ts))
			assert.Nil(t, msgs[0].Metadata)
			require.Len(t, msgs[1].Parts, 2)
			assert.Equal(t, "see image", msgs[1].Text())
			require.NotNil(t, msgs[2].Metadata)
			assert.Equal(t, "resp-1", msgs[2].Metadata.ResponseID)
			assert.Equal(t, domain.RoleAssistant, msgs[2].Role)
		})
	}
}

func TestChatStore_SaveReplacesMessages(t *testing.T) {
	for name, cs := range chatStores(t, 0) {
		t.Run(name, func(t *testing.T) {
			sess := &domain.ChatSession{ID: "s1", Messages: []domain.Message{{Role: domain.RoleUser, Content: "a"}, {Role: domain.RoleUser, Content: "b"}}}
			require.NoError(t, cs.SaveChatSession(sess))

			sess.Messages = sess.Messages[:1]
			require.NoError(t, cs.SaveChatSession(sess))
			assert.Len(t, cs.LoadMessages("s1"), 1)
			assert.Len(t, cs.GetAllChatSessions(), 1)
		})
	}
}

func TestChatStore_AppendMessage(t *testing.T) {
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for name, cs := range chatStores(t, 0) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, cs.SaveChatSession(&domain.ChatSession{ID: "s1", UpdatedAt: old}))

			require.NoError(t, cs.AppendMessage("s1", domain.Message{Role: domain.RoleUser, Content: "what is the weather"}))
			require.NoError(t, cs.AppendMessage("s1", domain.Message{Role: domain.RoleAssistant, Content: "sunny"}))

			sess, err := cs.GetChatSession("s1")
			require.NoError(t, err)
			require.Len(t, sess.Messages, 2)
			assert.NotEmpty(t, sess.Messages[0].ID)
			assert.False(t, sess.Messages[0].Timestamp.IsZero())
			assert.Equal(t, "what is the weather", sess.Title)
			assert.Equal(t, "sunny", sess.Preview)
			assert.True(t, sess.UpdatedAt.After(old))

			err = cs.AppendMessage("missing", domain.Message{Role: domain.RoleUser, Content: "x"})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestChatStore_MaxMessages(t *testing.T) {
	for name, cs := range chatStores(t, 3) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, cs.SaveChatSession(&domain.ChatSession{ID: "s1"}))
			for _, c := range []string{"1", "2", "3", "4", "5"} {
				require.NoError(t, cs.AppendMessage("s1", domain.Message{Role: domain.RoleUser, Content: c}))
			}
			msgs := cs.LoadMessages("s1")
			require.Len(t, msgs, 3)
			assert.Equal(t, "3", msgs[0].Content)
			assert.Equal(t, "5", msgs[2].Content)
		})
	}
}

func TestChatStore_UpdateMessage(t *testing.T) {
	for name, cs := range chatStores(t, 0) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, cs.SaveChatSession(&domain.ChatSession{
				ID:       "s1",
				Messages: []domain.Message{{ID: "m1", Role: domain.RoleAssistant, Content: "answer"}},
			}))

			msg := cs.LoadMessages("s1")[0]
			msg.EnsureMetadata().Feedback = &domain.Feedback{Kind: domain.FeedbackLiked, Note: "great"}
			require.NoError(t, cs.UpdateMessage("s1", msg))

			got := cs.LoadMessages("s1")[0]
			require.NotNil(t, got.Metadata)
			require.NotNil(t, got.Metadata.Feedback)
			assert.Equal(t, domain.FeedbackLiked, got.Metadata.Feedback.Kind)
			assert.Equal(t, "great", got.Metadata.Feedback.Note)

			assert.ErrorIs(t, cs.UpdateMessage("s1", domain.Message{ID: "nope"}), ErrNotFound)
			assert.ErrorIs(t, cs.UpdateMessage("missing", msg), ErrNotFound)
		})
	}
}

func TestChatStore_ReturnedMessagesAreCopies(t *testing.T) {
	for name, cs := range chatStores(t, 0) {
		t.Run(name, func(t *testing.T) {
			sess := &domain.ChatSession{
				ID: "s1",
				Messages: []domain.Message{{
					ID:       "m1",
					Role:     domain.RoleAssistant,
					Content:  "answer",
					Parts:    []domain.ContentPart{{Type: domain.PartText, Text: "answer"}},
					Metadata: &domain.MessageMetadata{Files: []domain.FileRef{{Name: "a.pdf", URL: "/f/a"}}},
				}},
			}
			require.NoError(t, cs.SaveChatSession(sess))
			// The caller keeps mutating what it saved.
			sess.Messages[0].Metadata.Files[0].Name = "caller.pdf"
			sess.Messages[0].Parts[0].Text = "caller"

			got, err := cs.GetChatSession("s1")
			require.NoError(t, err)
			got.Messages[0].EnsureMetadata().Feedback = &domain.Feedback{Kind: domain.FeedbackLiked}
			got.Messages[0].Metadata.Files[0].Name = "fetched.pdf"

			loaded := cs.LoadMessages("s1")
			loaded[0].Parts[0].Text = "loaded"
			loaded[0].Metadata.Files = nil

			stored := cs.LoadMessages("s1")[0]
			require.NotNil(t, stored.Metadata)
			assert.Nil(t, stored.Metadata.Feedback)
			require.Len(t, stored.Metadata.Files, 1)
			assert.Equal(t, "a.pdf", stored.Metadata.Files[0].Name)
			require.Len(t, stored.Parts, 1)
			assert.Equal(t, "answer", stored.Parts[0].Text)

			appended := domain.Message{ID: "m2", Role: domain.RoleUser, Content: "q",
				Metadata: &domain.MessageMetadata{Files: []domain.FileRef{{Name: "b.pdf", URL: "/f/b"}}}}
			require.NoError(t, cs.AppendMessage("s1", appended))
			appended.Metadata.Files[0].Name = "changed.pdf"

			updated := stored
			updated.Metadata.Feedback = &domain.Feedback{Kind: domain.FeedbackDisliked}
			require.NoError(t, cs.UpdateMessage("s1", updated))
			updated.Metadata.Feedback.Kind = domain.FeedbackLiked

			msgs := cs.LoadMessages("s1")
			require.Len(t, msgs, 2)
			assert.Equal(t, domain.FeedbackDisliked, msgs[0].Metadata.Feedback.Kind)
			assert.Equal(t, "b.pdf", msgs[1].Metadata.Files[0].Name)
		})
	}
}

func TestChatStore_DeleteMissingIsNoop(t *testing.T) {
	for name, cs := range chatStores(t, 0) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, cs.SaveChatSession(&domain.ChatSession{ID: "keep"}))
			assert.NoError(t, cs.DeleteChatSession("does-not-exist"))
			assert.Equal(t, []string{"keep"}, ids(cs.GetAllChatSessions()))
		})
	}
}

func TestChatStore_Search(t *testing.T) {
	for name, cs := range chatStores(t, 0) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, cs.SaveChatSession(&domain.ChatSession{
				ID:       "printer",
				Messages: []domain.Message{{Role: domain.RoleUser, Content: "Printer driver install"}},
			}))
			require.NoError(t, cs.SaveChatSession(&domain.ChatSession{
				ID: "cad",
				Messages: []domain.Message{
					{Role: domain.RoleUser, Content: "Analyze my drawing"},
					{Role: domain.RoleAssistant, Content: "The xyzzy layer holds dimensions"},
					{Role: domain.RoleAssistant, Content: "Anything else?"},
				},
			}))

			assert.Equal(t, []string{"printer"}, ids(cs.SearchChatSessions("PRINTER")))
			assert.Equal(t, []string{"printer"}, ids(cs.SearchChatSessions("driver inst")))
			assert.Equal(t, []string{"cad"}, ids(cs.SearchChatSessions("xyzzy")))
			assert.Empty(t, cs.SearchChatSessions("nothing matches this"))
			assert.Len(t, cs.SearchChatSessions(""), 2)
			assert.Len(t, cs.SearchChatSessions("   "), 2)
			assert.NotNil(t, cs.SearchChatSessions(`"*(`))
		})
	}
}

func TestSQLiteChatStore_SearchAfterDelete(t *testing.T) {
	cs := NewSQLiteChatStore(testDB(t), 0)
	require.NoError(t, cs.SaveChatSession(&domain.ChatSession{
		ID:       "s1",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "unique searchable xyzzy"}},
	}))
	require.Len(t, cs.SearchChatSessions("xyzzy"), 1)

	require.NoError(t, cs.DeleteChatSession("s1"))
	assert.Empty(t, cs.SearchChatSessions("xyzzy"))
}

func TestSQLiteChatStore_RepairsMalformedMetadata(t *testing.T) {
	db := testDB(t)
	cs := NewSQLiteChatStore(db, 0)
	require.NoError(t, cs.SaveChatSession(&domain.ChatSession{ID: "s1"}))

	_, err := db.sql.Exec(
		`INSERT INTO messages (id, session_id, role, content, metadata, timestamp) VALUES
		 ('m1', 's1', 'assistant', 'a', '{"responseId":"r1",}', 1),
		 ('m2', 's1', 'assistant', 'b', '[1, 2', 2)`,
	)
	require.NoError(t, err)

	msgs := cs.LoadMessages("s1")
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[0].Metadata)
	assert.Equal(t, "r1", msgs[0].Metadata.ResponseID)
	assert.Nil(t, msgs[1].Metadata)
}

func TestFTSQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", `"hello"*`},
		{"hello world", `"hello"* "world"*`},
		{`say "hi"`, `"say"* "hi"*`},
		{"* - ()", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ftsQuery(tt.in), "input %q", tt.in)
	}
}

// --- Agent store tests ---

func TestAgentStore_CRUD(t *testing.T) {
	as := NewAgentStore(testDB(t))

	a := &domain.Agent{Name: "Assistant", AppID: "app-1", APIKey: "key"}
	require.NoError(t, as.Create(a))
	require.NotEmpty(t, a.ID)
	assert.Equal(t, domain.AgentTypeFastGPT, a.Type)

	got, err := as.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Assistant", got.Name)
	assert.Equal(t, "app-1", got.AppID)

	got.Description = "updated"
	require.NoError(t, as.Update(got))
	got, err = as.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Description)

	require.NoError(t, as.Delete(a.ID))
	_, err = as.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, as.Delete(a.ID), ErrNotFound)
	assert.ErrorIs(t, as.Update(&domain.Agent{ID: "missing"}), ErrNotFound)
}

func TestAgentStore_CreateConflict(t *testing.T) {
	as := NewAgentStore(testDB(t))
	require.NoError(t, as.Create(&domain.Agent{ID: "a1", Name: "One"}))
	assert.ErrorIs(t, as.Create(&domain.Agent{ID: "a1", Name: "Dup"}), ErrConflict)
}

func TestAgentStore_ListOrderAndReorder(t *testing.T) {
	as := NewAgentStore(testDB(t))
	require.NoError(t, as.Create(&domain.Agent{ID: "a", Name: "Alpha"}))
	require.NoError(t, as.Create(&domain.Agent{ID: "b", Name: "Beta"}))
	require.NoError(t, as.Create(&domain.Agent{ID: "c", Name: "Gamma"}))

	list, err := as.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "c", list[2].ID)

	require.NoError(t, as.Reorder([]string{"c", "unknown", "a", "b"}))
	list, err = as.List()
	require.NoError(t, err)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, 0, list[0].Order)
	assert.Equal(t, "a", list[1].ID)
	assert.Equal(t, "b", list[2].ID)
}

func TestAgentStore_SetPublished(t *testing.T) {
	as := NewAgentStore(testDB(t))
	require.NoError(t, as.Create(&domain.Agent{ID: "a1", Name: "One"}))

	require.NoError(t, as.SetPublished("a1", true))
	got, err := as.Get("a1")
	require.NoError(t, err)
	assert.True(t, got.IsPublished)

	assert.ErrorIs(t, as.SetPublished("missing", true), ErrNotFound)
}

func TestAgentStore_SeedKeepsExisting(t *testing.T) {
	as := NewAgentStore(testDB(t))
	require.NoError(t, as.Create(&domain.Agent{ID: "a1", Name: "Edited"}))

	added, err := as.Seed([]domain.Agent{{ID: "a1", Name: "From config"}, {ID: "a2", Name: "New"}})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	got, err := as.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, "Edited", got.Name)
}

// --- Preferences tests ---

func TestPreferences_SelectedAgent(t *testing.T) {
	p := NewPreferences(testDB(t))
	assert.Equal(t, "", p.LoadSelectedAgentID())

	require.NoError(t, p.SaveSelectedAgent("agent-1"))
	assert.Equal(t, "agent-1", p.LoadSelectedAgentID())

	require.NoError(t, p.SaveSelectedAgent("agent-2"))
	assert.Equal(t, "agent-2", p.LoadSelectedAgentID())
}

func TestPreferences_SelectedChat(t *testing.T) {
	p := NewPreferences(testDB(t))
	require.NoError(t, p.SaveSelectedChat("chat-1"))
	assert.Equal(t, "chat-1", p.LoadSelectedChatID())
}

func TestPreferences_AgentVariables(t *testing.T) {
	p := NewPreferences(testDB(t))
	assert.Empty(t, p.LoadAgentVariables("a1"))
	assert.NotNil(t, p.LoadAgentVariables("a1"))

	require.NoError(t, p.SaveAgentVariables("a1", map[string]string{"company": "ZK"}))
	assert.Equal(t, map[string]string{"company": "ZK"}, p.LoadAgentVariables("a1"))
	assert.Empty(t, p.LoadAgentVariables("a2"))
}

func TestPreferences_AgentVariablesToleratesLegacyValues(t *testing.T) {
	p := NewPreferences(testDB(t))
	require.NoError(t, p.Set(AgentVariablesKey("a1"), `{"count": 3, "enabled": true, "name": "x", "empty": null}`))
	assert.Equal(t, map[string]string{"count": "3", "enabled": "true", "name": "x"}, p.LoadAgentVariables("a1"))

	require.NoError(t, p.Set(AgentVariablesKey("a2"), `[1, 2`))
	assert.Empty(t, p.LoadAgentVariables("a2"))
}

func TestPreferences_DeviceIDStable(t *testing.T) {
	p := NewPreferences(testDB(t))
	id1, err := p.DeviceID()
	require.NoError(t, err)
	id2, err := p.DeviceID()
	require.NoError(t, err)
	assert.NotEmpty(t, id1)
	assert.Equal(t, id1, id2)
}

func TestPreferences_JSONAndDelete(t *testing.T) {
	p := NewPreferences(testDB(t))
	type analysis struct {
		Entities int `json:"entities"`
	}
	require.NoError(t, p.SetJSON(CADAnalysisKey("f1"), analysis{Entities: 12}))

	var got analysis
	require.True(t, p.GetJSON(CADAnalysisKey("f1"), &got))
	assert.Equal(t, 12, got.Entities)

	require.NoError(t, p.Delete(CADAnalysisKey("f1")))
	assert.False(t, p.GetJSON(CADAnalysisKey("f1"), &got))
}

// --- Legacy import tests ---

func TestDecodeLegacySessions_Array(t *testing.T) {
	data := []byte(`[
	  {
	    "id": "s1",
	    "agentId": "a1",
	    "title": "Old chat",
	    "lastUpdated": 1767225600000,
	    "messages": [
	      {"id": "m1", "role": "user", "content": "hi", "timestamp": "2026-01-01T00:00:00.000Z"},
	      {"id": "m2", "role": "user", "content": [{"type": "text", "text": "look"}, {"type": "image_url", "image_url": {"url": "https://x/y.png"}}], "timestamp": 1767225600},
	      {"id": "m3", "role": "assistant", "content": "ok", "timestamp": "2026-01-01 00:00:05"}
	    ]
	  }
	]`)

	sessions, err := DecodeLegacySessions(data)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	s := sessions[0]
	assert.Equal(t, "a1", s.AgentID)
	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, s.UpdatedAt.Equal(want))
	assert.True(t, s.CreatedAt.Equal(want))
	require.Len(t, s.Messages, 3)
	assert.True(t, s.Messages[0].Timestamp.Equal(want))
	assert.True(t, s.Messages[1].Timestamp.Equal(want))
	assert.True(t, s.Messages[2].Timestamp.Equal(want.Add(5*time.Second)))
	require.Len(t, s.Messages[1].Parts, 2)
	assert.Equal(t, "https://x/y.png", s.Messages[1].Parts[1].URL)
}

func TestDecodeLegacySessions_MapAndRepair(t *testing.T) {
	data := []byte(`{"s9": {"agentId": "a1", "messages": [{"role": "user", "content": "hey",}],}}`)

	sessions, err := DecodeLegacySessions(data)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s9", sessions[0].ID)
	assert.Equal(t, "hey", sessions[0].Messages[0].Content)
}

func TestDecodeLegacySessions_ImportIntoStore(t *testing.T) {
	cs := NewSQLiteChatStore(testDB(t), 0)
	sessions, err := DecodeLegacySessions([]byte(`[{"id":"s1","messages":[{"role":"user","content":"imported"}]}]`))
	require.NoError(t, err)
	for i := range sessions {
		require.NoError(t, cs.SaveChatSession(&sessions[i]))
	}
	list := cs.GetAllChatSessions()
	require.Len(t, list, 1)
	assert.Equal(t, "imported", list[0].Title)
}

func TestEncodeJSONSkipsEmpty(t *testing.T) {
	for _, v := range []any{nil, []domain.ContentPart{}, (*domain.MessageMetadata)(nil)} {
		got, err := encodeJSON(v)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	got, err := encodeJSON(map[string]int{"a": 1})
	require.NoError(t, err)
	var back map[string]int
	require.NoError(t, json.Unmarshal([]byte(got.(string)), &back))
	assert.Equal(t, 1, back["a"])
}
