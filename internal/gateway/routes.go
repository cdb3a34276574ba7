package gateway

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aihub/agentdesk/internal/chat"
	"github.com/aihub/agentdesk/internal/config"
	"github.com/aihub/agentdesk/internal/fastgpt"
	"github.com/aihub/agentdesk/internal/optimization"
)

// safeConfigPrefixes are the config subtrees the config.* RPCs may touch.
// Credentials, agents and the proxy allowlist are not among them.
var safeConfigPrefixes = []string{
	"gateway.port",
	"gateway.mode",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.controlUi",
	"logging",
	"session",
	"performance",
	"uploads",
	"proxy.timeoutSeconds",
}

func isAllowedConfigPath(key string) bool {
	return slices.ContainsFunc(safeConfigPrefixes, func(prefix string) bool {
		rest, ok := strings.CutPrefix(key, prefix)
		return ok && (rest == "" || rest[0] == '.')
	})
}

// chatCallTimeout is the maximum duration of one chat turn.
const chatCallTimeout = 5 * time.Minute

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	gatherer := s.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/cancel", s.handleChatCancel)
	mux.HandleFunc("POST /api/chat-proxy", s.handleChatProxy)
	mux.HandleFunc("POST /api/message-feedback", s.handleFeedback)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/cad-analyzer/analyze", s.handleCADAnalyze)

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleSaveSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PUT /api/sessions/{id}", s.handleSaveSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/messages", s.handleSessionMessages)

	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("POST /api/agents", s.handleCreateAgent)
	mux.HandleFunc("PUT /api/agents/order", s.handleReorderAgents)
	mux.HandleFunc("GET /api/agents/{id}", s.handleGetAgent)
	mux.HandleFunc("PUT /api/agents/{id}", s.handleUpdateAgent)
	mux.HandleFunc("DELETE /api/agents/{id}", s.handleDeleteAgent)
	mux.HandleFunc("GET /api/agents/{id}/variables", s.handleGetVariables)
	mux.HandleFunc("PUT /api/agents/{id}/variables", s.handlePutVariables)

	mux.HandleFunc("GET /api/preferences/selected-agent", s.handleGetSelectedAgent)
	mux.HandleFunc("PUT /api/preferences/selected-agent", s.handlePutSelectedAgent)
	mux.HandleFunc("GET /api/preferences/device-id", s.handleDeviceID)

	mux.HandleFunc("GET /api/optimizations", s.handleListOptimizations)
	mux.HandleFunc("POST /api/optimizations/analyze", s.handleAnalyzeOptimizations)

	mux.HandleFunc("POST /api/performance/samples", s.handleRecordSamples)
	mux.HandleFunc("GET /api/performance/report", s.handlePerformanceReport)
	mux.HandleFunc("GET /api/performance/alerts", s.handleListAlerts)
	mux.HandleFunc("POST /api/performance/alerts/{id}/ack", s.handleAckAlert)
	mux.HandleFunc("GET /api/performance/benchmarks", s.handleListBenchmarks)
	mux.HandleFunc("POST /api/performance/benchmark", s.handleRunBenchmark)

	mux.HandleFunc("GET /api/status", s.handleStatus)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("config.set", s.rpcConfigSet)
	s.Handle("session.list", s.rpcSessionList)
	s.Handle("session.search", s.rpcSessionSearch)
	s.Handle("session.delete", s.rpcSessionDelete)
	s.Handle("session.messages", s.rpcSessionMessages)
	s.Handle("agents.list", s.rpcAgentsList)
	s.Handle("agent.select", s.rpcAgentSelect)
	s.Handle("chat.send", s.rpcChatSend)
	s.Handle("chat.cancel", s.rpcChatCancel)
	s.Handle("chat.feedback", s.rpcChatFeedback)
	s.Handle("optimization.analyze", s.rpcOptimizationAnalyze)
	s.Handle("performance.report", s.rpcPerformanceReport)
	s.Handle("clients.list", s.rpcClientsList)
}

// Built-in RPC handlers

func (s *Server) rpcHealth(rc *RequestContext) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.clients.Count(),
	}
	if s.chat != nil {
		resp.InFlight = s.chat.InFlight()
	}
	if !s.startedAt.IsZero() {
		resp.Uptime = time.Since(s.startedAt).Round(time.Second).String()
	}
	rc.Respond(resp)
}

func (s *Server) rpcClientsList(rc *RequestContext) {
	rc.Respond(map[string]any{"clients": s.clients.Summaries()})
}

type configGetParams struct {
	Key string `json:"key"`
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError(CodeInvalidParams, "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError(CodeForbidden, "access denied for config path: "+p.Key)
		return
	}

	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}

	s.mu.RLock()
	val, ok := config.GetValueAtPath(s.configRaw, path)
	s.mu.RUnlock()
	if !ok {
		rc.RespondError(CodeNotFound, "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

type configSetParams struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (s *Server) rpcConfigSet(rc *RequestContext) {
	var p configSetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError(CodeInvalidParams, "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError(CodeForbidden, "cannot modify config path: "+p.Key)
		return
	}

	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}

	s.mu.Lock()
	config.SetValueAtPath(s.configRaw, path, p.Value)
	s.mu.Unlock()

	rc.Respond(map[string]any{"key": p.Key, "value": p.Value})
}

type sessionParams struct {
	ID    string `json:"id,omitempty"`
	Query string `json:"query,omitempty"`
}

func (s *Server) rpcSessionList(rc *RequestContext) {
	if s.sessions == nil {
		rc.RespondErr(unavailable("sessions"))
		return
	}
	rc.Respond(map[string]any{"sessions": s.sessions.GetAllChatSessions()})
}

func (s *Server) rpcSessionSearch(rc *RequestContext) {
	var p sessionParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if s.sessions == nil {
		rc.RespondErr(unavailable("sessions"))
		return
	}
	rc.Respond(map[string]any{"sessions": s.sessions.SearchChatSessions(p.Query)})
}

func (s *Server) rpcSessionDelete(rc *RequestContext) {
	var p sessionParams
	if err := rc.Params(&p); err != nil || p.ID == "" {
		rc.RespondError(CodeInvalidParams, "id is required")
		return
	}
	if err := s.deleteSession(context.Background(), p.ID); err != nil {
		rc.RespondErr(err)
		return
	}
	rc.Respond(map[string]any{"id": p.ID, "deleted": true})
}

func (s *Server) rpcSessionMessages(rc *RequestContext) {
	var p sessionParams
	if err := rc.Params(&p); err != nil || p.ID == "" {
		rc.RespondError(CodeInvalidParams, "id is required")
		return
	}
	sess, err := s.getSession(p.ID)
	if err != nil {
		rc.RespondErr(err)
		return
	}
	rc.Respond(map[string]any{"id": sess.ID, "messages": sess.Messages})
}

func (s *Server) rpcAgentsList(rc *RequestContext) {
	list, err := s.listAgents(false)
	if err != nil {
		rc.RespondErr(err)
		return
	}
	rc.Respond(map[string]any{"agents": list})
}

type agentSelectParams struct {
	ID string `json:"id"`
}

func (s *Server) rpcAgentSelect(rc *RequestContext) {
	var p agentSelectParams
	if err := rc.Params(&p); err != nil || p.ID == "" {
		rc.RespondError(CodeInvalidParams, "id is required")
		return
	}
	a, err := s.selectAgent(context.Background(), p.ID)
	if err != nil {
		rc.RespondErr(err)
		return
	}
	rc.Respond(map[string]any{"agent": a})
}

// rpcChatSend runs the turn on its own goroutine so the read loop keeps
// serving chat.cancel while a reply streams.
func (s *Server) rpcChatSend(rc *RequestContext) {
	if s.chat == nil {
		rc.RespondErr(unavailable("chat"))
		return
	}

	var req chat.SendRequest
	if err := rc.Params(&req); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" && len(req.Parts) == 0 {
		rc.RespondError(CodeInvalidParams, "content is required")
		return
	}
	if req.ClientKey == "" {
		req.ClientKey = rc.Client.ConnID
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), chatCallTimeout)
		defer cancel()

		var cb chat.StreamCallback
		if req.Stream {
			cb = func(ev fastgpt.StreamEvent) {
				rc.Client.SendEvent(EventChatDelta, chatDelta{RequestID: rc.Frame.ID, Event: ev}, s.eventSeq.Add(1))
			}
		}
		res, err := s.chat.Send(ctx, req, cb)
		if err != nil {
			rc.RespondErr(err)
			return
		}
		rc.Respond(res)
	}()
}

// chatDelta is the payload of a chat.delta event.
type chatDelta struct {
	RequestID string              `json:"requestId"`
	Event     fastgpt.StreamEvent `json:"event"`
}

type chatCancelParams struct {
	ClientKey string `json:"clientKey,omitempty"`
}

func (s *Server) rpcChatCancel(rc *RequestContext) {
	if s.chat == nil {
		rc.RespondErr(unavailable("chat"))
		return
	}
	var p chatCancelParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.ClientKey == "" {
		p.ClientKey = rc.Client.ConnID
	}
	rc.Respond(map[string]any{"cancelled": s.chat.Cancel(p.ClientKey)})
}

func (s *Server) rpcChatFeedback(rc *RequestContext) {
	var p feedbackRequest
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	msg, err := s.feedback(context.Background(), p)
	switch {
	case err != nil && msg != nil:
		rc.Respond(map[string]any{"message": msg, "warning": err.Error()})
	case err != nil:
		rc.RespondErr(err)
	default:
		rc.Respond(map[string]any{"message": msg})
	}
}

type optimizationParams struct {
	Filters optimization.Filters `json:"filters"`
	Source  string               `json:"source,omitempty"` // "catalog" | "metrics"
}

func (s *Server) rpcOptimizationAnalyze(rc *RequestContext) {
	var p optimizationParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	rc.Respond(s.analyzeOptimizations(p.Source, p.Filters, rc.Client.Lang))
}

func (s *Server) rpcPerformanceReport(rc *RequestContext) {
	rep, err := s.performanceReport(rc.Client.Lang)
	if err != nil {
		rc.RespondErr(err)
		return
	}
	rc.Respond(rep)
}
