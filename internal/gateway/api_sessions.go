package gateway

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/aihub/agentdesk/internal/domain"
	"github.com/aihub/agentdesk/internal/hooks"
)

func (s *Server) emit(ctx context.Context, event string, data map[string]any) {
	if s.hooks != nil {
		s.hooks.Emit(ctx, event, data)
	}
}

func (s *Server) getSession(id string) (*domain.ChatSession, error) {
	if s.sessions == nil {
		return nil, unavailable("sessions")
	}
	return s.sessions.GetChatSession(id)
}

func (s *Server) deleteSession(ctx context.Context, id string) error {
	if s.sessions == nil {
		return unavailable("sessions")
	}
	if err := s.sessions.DeleteChatSession(id); err != nil {
		return err
	}
	if s.prefs != nil && s.prefs.LoadSelectedChatID() == id {
		if err := s.prefs.SaveSelectedChat(""); err != nil {
			s.log.Warn().Err(err).Msg("failed to clear selected chat")
		}
	}
	s.emit(ctx, hooks.EventSessionDeleted, map[string]any{"sessionId": id})
	return nil
}

// handleListSessions lists sessions by recency, or searches titles,
// previews and message text when ?q= is given.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeErr(w, unavailable("sessions"))
		return
	}
	var list []domain.SessionSummary
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		list = s.sessions.SearchChatSessions(q)
	} else {
		list = s.sessions.GetAllChatSessions()
	}
	if list == nil {
		list = []domain.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if s.prefs != nil {
		if err := s.prefs.SaveSelectedChat(sess.ID); err != nil {
			s.log.Warn().Err(err).Str("sessionId", sess.ID).Msg("failed to remember selected chat")
		}
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleSaveSession creates or replaces a whole session, e.g. when the
// browser imports its local history.
func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeErr(w, unavailable("sessions"))
		return
	}
	var sess domain.ChatSession
	if err := decodeBody(r, &sess); err != nil {
		writeErr(w, err)
		return
	}
	if id := r.PathValue("id"); id != "" {
		sess.ID = id
	}
	if err := s.sessions.SaveChatSession(&sess); err != nil {
		writeErr(w, err)
		return
	}
	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSON(w, status, sess.Summary())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deleteSession(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.getSession(id); err != nil {
		writeErr(w, err)
		return
	}
	msgs := s.sessions.LoadMessages(id)
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "messages": msgs})
}

// Agents

func (s *Server) listAgents(publishedOnly bool) ([]domain.Agent, error) {
	if s.agents == nil {
		return nil, unavailable("agents")
	}
	list, err := s.agents.List(publishedOnly)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Agent, len(list))
	for i, a := range list {
		out[i] = a.Redacted()
	}
	return out, nil
}

func (s *Server) selectAgent(ctx context.Context, id string) (*domain.Agent, error) {
	if s.agents == nil {
		return nil, unavailable("agents")
	}
	if err := s.agents.Select(id); err != nil {
		return nil, err
	}
	a, err := s.agents.Get(id)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, hooks.EventAgentSelected, map[string]any{"agentId": id})
	red := a.Redacted()
	return &red, nil
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	published, _ := strconv.ParseBool(r.URL.Query().Get("published"))
	list, err := s.listAgents(published)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": list})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	if s.agents == nil {
		writeErr(w, unavailable("agents"))
		return
	}
	a, err := s.agents.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.Redacted())
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	if s.agents == nil {
		writeErr(w, unavailable("agents"))
		return
	}
	var a domain.Agent
	if err := decodeBody(r, &a); err != nil {
		writeErr(w, err)
		return
	}
	if strings.TrimSpace(a.Name) == "" {
		writeErr(w, invalid("name is required"))
		return
	}
	if err := s.agents.Create(&a); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a.Redacted())
}

// handleUpdateAgent replaces an agent. A masked API key, as returned by the
// read endpoints, keeps the stored key.
func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	if s.agents == nil {
		writeErr(w, unavailable("agents"))
		return
	}
	id := r.PathValue("id")
	cur, err := s.agents.Get(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	var a domain.Agent
	if err := decodeBody(r, &a); err != nil {
		writeErr(w, err)
		return
	}
	a.ID = id
	if strings.Contains(a.APIKey, "****") {
		a.APIKey = cur.APIKey
	}
	a.CreatedAt = cur.CreatedAt
	if err := s.agents.Update(&a); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.Redacted())
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if s.agents == nil {
		writeErr(w, unavailable("agents"))
		return
	}
	id := r.PathValue("id")
	if err := s.agents.Delete(id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleReorderAgents(w http.ResponseWriter, r *http.Request) {
	if s.agents == nil {
		writeErr(w, unavailable("agents"))
		return
	}
	var req reorderRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if len(req.IDs) == 0 {
		writeErr(w, invalid("ids is required"))
		return
	}
	if err := s.agents.Reorder(req.IDs); err != nil {
		writeErr(w, err)
		return
	}
	list, err := s.listAgents(false)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": list})
}

func (s *Server) handleGetVariables(w http.ResponseWriter, r *http.Request) {
	if s.agents == nil {
		writeErr(w, unavailable("agents"))
		return
	}
	id := r.PathValue("id")
	a, err := s.agents.Get(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	defs := a.GlobalVariables
	if defs == nil {
		defs = []domain.GlobalVariable{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"definitions": defs,
		"values":      s.agents.Variables(id),
	})
}

func (s *Server) handlePutVariables(w http.ResponseWriter, r *http.Request) {
	if s.agents == nil {
		writeErr(w, unavailable("agents"))
		return
	}
	var values map[string]string
	if err := decodeBody(r, &values); err != nil {
		writeErr(w, err)
		return
	}
	saved, err := s.agents.SaveVariables(r.PathValue("id"), values)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"values": saved})
}

// Preferences

func (s *Server) handleGetSelectedAgent(w http.ResponseWriter, r *http.Request) {
	if s.agents == nil {
		writeErr(w, unavailable("agents"))
		return
	}
	a, err := s.agents.Selected()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.Redacted())
}

func (s *Server) handlePutSelectedAgent(w http.ResponseWriter, r *http.Request) {
	var req agentSelectParams
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.ID == "" {
		writeErr(w, invalid("id is required"))
		return
	}
	a, err := s.selectAgent(r.Context(), req.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeviceID(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		writeErr(w, unavailable("preferences"))
		return
	}
	id, err := s.prefs.DeviceID()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deviceId": id})
}
