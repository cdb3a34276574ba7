package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/agentdesk/internal/agents"
	"github.com/aihub/agentdesk/internal/chat"
	"github.com/aihub/agentdesk/internal/config"
	"github.com/aihub/agentdesk/internal/domain"
	"github.com/aihub/agentdesk/internal/fastgpt"
	"github.com/aihub/agentdesk/internal/files"
	"github.com/aihub/agentdesk/internal/hooks"
	"github.com/aihub/agentdesk/internal/logging"
	"github.com/aihub/agentdesk/internal/performance"
	"github.com/aihub/agentdesk/internal/proxy"
	"github.com/aihub/agentdesk/internal/retry"
	"github.com/aihub/agentdesk/internal/store"
)

const testToken = "test-token-123"

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// fixture is a gateway wired to in-memory services and a mock FastGPT client.
type fixture struct {
	srv      *Server
	ts       *httptest.Server
	upstream *httptest.Server
	client   *fastgpt.MockClient
	sessions store.ChatStore
	agents   *agents.Registry
	prefs    *store.Preferences
	monitor  *performance.Monitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := silentLog()

	cfg := config.Defaults()
	cfg.Gateway.Auth.Mode = "token"
	cfg.Gateway.Auth.Token = testToken

	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	prefs := store.NewPreferences(db)

	reg := agents.NewRegistry(store.NewAgentStore(db), prefs,
		config.FastGPTConfig{BaseURL: "http://fastgpt.test/api", APIKey: "default-key"}, log)
	require.NoError(t, reg.Create(&domain.Agent{
		ID:             "support",
		Name:           "Support",
		AppID:          "app-support",
		SupportsStream: true,
		IsPublished:    true,
		Order:          1,
	}))
	require.NoError(t, reg.Create(&domain.Agent{
		ID:          "drafting",
		Name:        "Drafting",
		AppID:       "app-drafting",
		APIKey:      "fastgpt-drafting-secret",
		IsPublished: false,
		Order:       2,
	}))
	require.NoError(t, reg.Select("support"))

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"path":"` + r.URL.Path + `"}`))
	}))
	t.Cleanup(upstream.Close)

	sessions := store.NewMemoryChatStore(100)
	hm := hooks.NewManager(log)
	client := &fastgpt.MockClient{}
	runner := chat.NewRunner(reg, sessions, client, hm, log)

	uploads, err := files.NewStore(t.TempDir(), 1<<20, log)
	require.NoError(t, err)
	analyzer := files.NewAnalyzer(uploads, prefs, 8, time.Hour, log)

	monitor := performance.NewMonitor(100, map[string]float64{"chat.send": 2000})
	alerts := performance.NewAlertManager([]performance.AlertRule{
		{Metric: "browser.page.load", Stat: "mean", Op: ">", Threshold: 100, Severity: domain.SeverityWarning},
	})
	runner.SetTracker(monitor)

	promReg := prometheus.NewRegistry()
	metrics, err := performance.NewMetrics("agentdesk", promReg)
	require.NoError(t, err)

	px := proxy.New(proxy.Config{AllowedHosts: []string{"127.0.0.1"}, Timeout: 5 * time.Second}, log)
	checker := retry.NewChecker(upstream.URL, time.Minute, upstream.Client(), log)

	srv := New(cfg, log,
		WithConfigRaw(map[string]any{
			"gateway": map[string]any{"port": 18789, "mode": "local"},
		}),
		WithHooks(hm),
		WithChat(runner),
		WithAgents(reg),
		WithSessions(sessions),
		WithPreferences(prefs),
		WithProxy(px),
		WithFiles(uploads, analyzer),
		WithPerformance(monitor, alerts, performance.NewHistory(10)),
		WithMetrics(metrics, promReg),
		WithChecker(checker),
	)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{
		srv:      srv,
		ts:       ts,
		upstream: upstream,
		client:   client,
		sessions: sessions,
		agents:   reg,
		prefs:    prefs,
		monitor:  monitor,
	}
}

// bareServer has no services attached.
func bareServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.Gateway.Auth.Mode = "token"
	cfg.Gateway.Auth.Token = testToken
	srv := New(cfg, silentLog())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func connectParams(token string) ConnectParams {
	return ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client: ClientInfo{
			ID:       "test-client",
			Version:  "1.0.0",
			Platform: "linux",
			Mode:     "web",
		},
		Auth:   &ConnectAuth{Token: token},
		Locale: "zh-CN",
	}
}

// dial returns a WebSocket connection that has completed the handshake.
func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, err := NewRequest("auth-req", "connect", connectParams(testToken))
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var hello Frame
	require.NoError(t, conn.ReadJSON(&hello))
	require.NotNil(t, hello.OK)
	require.True(t, *hello.OK, "handshake should succeed")
	return conn
}

// call sends a request and returns the response frame with the same id,
// collecting any events received before it.
func call(t *testing.T, conn *websocket.Conn, id, method string, params any) (Frame, []Frame) {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	var events []Frame
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == FrameTypeResponse && f.ID == id {
			return f, events
		}
		if f.Type == FrameTypeEvent {
			events = append(events, f)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := bareServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	// Public endpoint only returns status; no version, clients, or uptime
	assert.Empty(t, health.Version)
}

func TestNotFoundEndpoint(t *testing.T) {
	ts := bareServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketHandshakeSuccess(t *testing.T) {
	ts := bareServer(t)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	assert.Equal(t, FrameTypeEvent, challenge.Type)
	assert.Equal(t, EventConnectChallenge, challenge.Event)

	req, err := NewRequest("req-1", "connect", connectParams(testToken))
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var helloResp Frame
	require.NoError(t, conn.ReadJSON(&helloResp))
	assert.Equal(t, FrameTypeResponse, helloResp.Type)
	assert.Equal(t, "req-1", helloResp.ID)
	require.NotNil(t, helloResp.OK)
	assert.True(t, *helloResp.OK)

	var hello HelloOK
	require.NoError(t, json.Unmarshal(helloResp.Payload, &hello))
	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Contains(t, hello.Features.Methods, "chat.send")
	assert.Contains(t, hello.Features.Methods, "optimization.analyze")
	assert.Equal(t, ServerEvents, hello.Features.Events)
	assert.Greater(t, hello.Policy.MaxPayload, 0)
}

func TestWebSocketHandshakeWrongToken(t *testing.T) {
	ts := bareServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, _ := NewRequest("req-1", "connect", connectParams("wrong-token"))
	require.NoError(t, conn.WriteJSON(req))

	var errResp Frame
	require.NoError(t, conn.ReadJSON(&errResp))
	assert.Equal(t, FrameTypeResponse, errResp.Type)
	require.NotNil(t, errResp.OK)
	assert.False(t, *errResp.OK)
	require.NotNil(t, errResp.Error)
	assert.Equal(t, "unauthorized", errResp.Error.Code)
}

func TestWebSocketRPCHealth(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.ts)

	resp, _ := call(t, conn, "req-2", "health", nil)
	require.NotNil(t, resp.OK)
	assert.True(t, *resp.OK)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Clients)
	assert.Equal(t, 0, health.InFlight)
}

func TestWebSocketRPCConfigGetSet(t *testing.T) {
	conn := dial(t, bareServerWithConfig(t))

	resp, _ := call(t, conn, "req-3", "config.get", configGetParams{Key: "gateway.port"})
	require.True(t, *resp.OK)
	var result map[string]any
	require.NoError(t, json.Unmarshal(resp.Payload, &result))
	assert.Equal(t, "gateway.port", result["key"])
	assert.Equal(t, float64(18789), result["value"])

	resp, _ = call(t, conn, "req-4", "config.set", configSetParams{Key: "gateway.mode", Value: "remote"})
	require.True(t, *resp.OK)

	resp, _ = call(t, conn, "req-5", "config.get", configGetParams{Key: "gateway.mode"})
	require.True(t, *resp.OK)
	require.NoError(t, json.Unmarshal(resp.Payload, &result))
	assert.Equal(t, "remote", result["value"])

	resp, _ = call(t, conn, "req-6", "config.get", configGetParams{Key: "fastgpt.apiKey"})
	require.False(t, *resp.OK)
	assert.Equal(t, "forbidden", resp.Error.Code)

	resp, _ = call(t, conn, "req-7", "config.get", configGetParams{Key: "logging.level"})
	require.False(t, *resp.OK)
	assert.Equal(t, "not_found", resp.Error.Code)
}

func bareServerWithConfig(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.Gateway.Auth.Mode = "token"
	cfg.Gateway.Auth.Token = testToken
	srv := New(cfg, silentLog(), WithConfigRaw(map[string]any{
		"gateway": map[string]any{"port": 18789, "mode": "local"},
	}))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestWebSocketRPCUnknownMethod(t *testing.T) {
	conn := dial(t, bareServer(t))

	resp, _ := call(t, conn, "req-6", "nonexistent.method", nil)
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "method_not_found", resp.Error.Code)
}

func TestChatSendRPC(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.ts)

	resp, _ := call(t, conn, "chat-1", "chat.send", chat.SendRequest{Content: "Hello bot!"})
	require.NotNil(t, resp.OK)
	require.True(t, *resp.OK, "%+v", resp.Error)

	var res chat.SendResult
	require.NoError(t, json.Unmarshal(resp.Payload, &res))
	assert.Equal(t, "support", res.AgentID)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, "Hello bot!", res.User.Content)
	assert.Equal(t, "mock response", res.Reply.Content)

	sess, err := f.sessions.GetChatSession(res.SessionID)
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 2)

	stats := f.monitor.Snapshot()["chat.send"]
	assert.Equal(t, 1, stats.Count)
}

func TestChatSendRPCStream(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.ts)

	resp, events := call(t, conn, "chat-s", "chat.send", chat.SendRequest{Content: "stream please", Stream: true})
	require.True(t, *resp.OK, "%+v", resp.Error)

	var deltas []chatDelta
	for _, ev := range events {
		if ev.Event != EventChatDelta {
			continue
		}
		var d chatDelta
		require.NoError(t, json.Unmarshal(ev.Payload, &d))
		assert.Equal(t, "chat-s", d.RequestID)
		deltas = append(deltas, d)
	}
	require.NotEmpty(t, deltas)
	assert.Equal(t, fastgpt.EventAnswer, deltas[0].Event.Type)
	assert.Equal(t, fastgpt.EventDone, deltas[len(deltas)-1].Event.Type)

	var res chat.SendResult
	require.NoError(t, json.Unmarshal(resp.Payload, &res))
	assert.Equal(t, "mock stream", res.Reply.Content)
}

func TestChatSendRPCUpstreamError(t *testing.T) {
	f := newFixture(t)
	f.client.CompleteFunc = func(context.Context, fastgpt.Target, fastgpt.ChatRequest) (*fastgpt.ChatResponse, error) {
		return nil, &fastgpt.APIError{Status: http.StatusBadGateway, Message: "bad gateway"}
	}
	conn := dial(t, f.ts)

	resp, _ := call(t, conn, "chat-e", "chat.send", chat.SendRequest{Content: "hi"})
	require.False(t, *resp.OK)
	assert.Equal(t, "upstream_error", resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
}

func TestChatSendNoRunner(t *testing.T) {
	conn := dial(t, bareServer(t))

	resp, _ := call(t, conn, "chat-2", "chat.send", chat.SendRequest{Content: "Hello"})
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "unavailable", resp.Error.Code)
}

func TestChatSendEmptyMessage(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.ts)

	resp, _ := call(t, conn, "chat-3", "chat.send", chat.SendRequest{Content: "  "})
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	assert.Equal(t, "invalid_params", resp.Error.Code)
}

func TestChatCancelRPCNothingInFlight(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.ts)

	resp, _ := call(t, conn, "cancel-1", "chat.cancel", chatCancelParams{})
	require.True(t, *resp.OK)
	var out map[string]bool
	require.NoError(t, json.Unmarshal(resp.Payload, &out))
	assert.False(t, out["cancelled"])
}

func TestSessionRPCs(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sessions.SaveChatSession(&domain.ChatSession{
		ID:      "s1",
		AgentID: "support",
		Title:   "Kitchen layout",
		Messages: []domain.Message{
			{ID: "m1", Role: domain.RoleUser, Content: "Where does the sink go?"},
		},
	}))
	conn := dial(t, f.ts)

	resp, _ := call(t, conn, "l", "session.list", nil)
	require.True(t, *resp.OK)
	var list struct {
		Sessions []domain.SessionSummary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(resp.Payload, &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "s1", list.Sessions[0].ID)

	resp, _ = call(t, conn, "q", "session.search", sessionParams{Query: "kitchen"})
	require.True(t, *resp.OK)
	require.NoError(t, json.Unmarshal(resp.Payload, &list))
	assert.Len(t, list.Sessions, 1)

	resp, _ = call(t, conn, "m", "session.messages", sessionParams{ID: "s1"})
	require.True(t, *resp.OK)
	var msgs struct {
		Messages []domain.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(resp.Payload, &msgs))
	assert.Len(t, msgs.Messages, 1)

	resp, _ = call(t, conn, "d", "session.delete", sessionParams{ID: "s1"})
	require.True(t, *resp.OK)
	_, err := f.sessions.GetChatSession("s1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	resp, _ = call(t, conn, "d2", "session.delete", sessionParams{ID: "s1"})
	require.False(t, *resp.OK)
	assert.Equal(t, "not_found", resp.Error.Code)
}

func TestAgentRPCs(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.ts)

	resp, _ := call(t, conn, "a", "agents.list", nil)
	require.True(t, *resp.OK)
	var list struct {
		Agents []domain.Agent `json:"agents"`
	}
	require.NoError(t, json.Unmarshal(resp.Payload, &list))
	require.Len(t, list.Agents, 2)
	for _, a := range list.Agents {
		assert.NotContains(t, a.APIKey, "secret")
	}

	resp, _ = call(t, conn, "s", "agent.select", agentSelectParams{ID: "drafting"})
	require.True(t, *resp.OK)
	assert.Equal(t, "drafting", f.prefs.LoadSelectedAgentID())

	resp, _ = call(t, conn, "s2", "agent.select", agentSelectParams{ID: "missing"})
	require.False(t, *resp.OK)
	assert.Equal(t, "not_found", resp.Error.Code)
}

func TestOptimizationRPCUsesClientLocale(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.ts)

	resp, _ := call(t, conn, "o", "optimization.analyze", optimizationParams{Source: "catalog"})
	require.True(t, *resp.OK)
	var res OptimizationResult
	require.NoError(t, json.Unmarshal(resp.Payload, &res))
	require.NotEmpty(t, res.Optimizations)
	assert.Equal(t, len(res.Optimizations), res.Analysis.Total)
}

func TestHookEventsBroadcast(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.ts)

	resp, events := call(t, conn, "chat-h", "chat.send", chat.SendRequest{Content: "hi"})
	require.True(t, *resp.OK)

	// Hooks run synchronously, so their events precede the response.
	seen := map[string]bool{}
	for _, ev := range events {
		if ev.Event != EventHook {
			continue
		}
		var p hooks.Payload
		require.NoError(t, json.Unmarshal(ev.Payload, &p))
		seen[p.Event] = true
	}
	assert.True(t, seen[hooks.EventMessageReceived])
	assert.True(t, seen[hooks.EventAfterChat])
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		bind string
		port int
		want string
	}{
		{"loopback", 18789, "127.0.0.1:18789"},
		{"lan", 9999, "0.0.0.0:9999"},
		{"auto", 8080, "0.0.0.0:8080"},
		{"custom", 3000, "0.0.0.0:3000"},
		{"unknown", 5000, "127.0.0.1:5000"},
	}

	for _, tt := range tests {
		t.Run(tt.bind, func(t *testing.T) {
			addr := resolveBindAddr(config.GatewayConfig{Bind: tt.bind, Port: tt.port})
			assert.Equal(t, tt.want, addr)
		})
	}
}

func TestServerStart(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gateway.Port = 0 // let OS pick a port
	cfg.Gateway.Auth.Mode = "token"
	cfg.Gateway.Auth.Token = "test-token"

	srv := New(cfg, silentLog())

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// Give it a moment to start
	time.Sleep(100 * time.Millisecond)

	cancel()

	err := <-errCh
	assert.NoError(t, err)
}

func TestWebSocketHandshakeProtocolMismatch(t *testing.T) {
	ts := bareServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	params := connectParams(testToken)
	params.MinProtocol, params.MaxProtocol = ProtocolVersion+1, ProtocolVersion+2
	req, err := NewRequest("req-1", "connect", params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeProtocolMismatch, resp.Error.Code)
}

func TestWebSocketHandshakeRequiresConnect(t *testing.T) {
	ts := bareServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, err := NewRequest("req-1", "health", nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeProtocolError, resp.Error.Code)
}

func TestHelloAdvertisesSortedMethodsAndTick(t *testing.T) {
	f := newFixture(t)
	hello := f.srv.hello("conn-x")
	assert.IsNonDecreasing(t, hello.Features.Methods)
	assert.Contains(t, hello.Features.Methods, "clients.list")
	assert.Equal(t, 30000, hello.Policy.TickIntervalMs)
	assert.Equal(t, "conn-x", hello.Server.ConnID)
}

func TestWebSocketMalformedFrameKeepsConnection(t *testing.T) {
	conn := dial(t, bareServer(t))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var errFrame Frame
	require.NoError(t, conn.ReadJSON(&errFrame))
	require.NotNil(t, errFrame.Error)
	assert.Equal(t, CodeProtocolError, errFrame.Error.Code)

	resp, _ := call(t, conn, "after", "health", nil)
	assert.True(t, *resp.OK)
}

func TestRPCTimingRecorded(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.ts)

	call(t, conn, "h1", "health", nil)
	call(t, conn, "h2", "health", nil)

	// The sample is recorded after the response is written.
	assert.Eventually(t, func() bool {
		stats, ok := f.monitor.Stats("rpc.health")
		return ok && stats.Count == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientsListRPC(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.ts)

	resp, _ := call(t, conn, "c", "clients.list", nil)
	require.True(t, *resp.OK)
	var out struct {
		Clients []ClientSummary `json:"clients"`
	}
	require.NoError(t, json.Unmarshal(resp.Payload, &out))
	require.Len(t, out.Clients, 1)
	assert.Equal(t, "test-client", out.Clients[0].ClientID)
	assert.Equal(t, AuthModeToken, out.Clients[0].AuthMethod)
	assert.Equal(t, "zh-Hans", out.Clients[0].Lang)
}

func TestDisconnectCancelsInFlightChat(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	stopped := make(chan struct{})
	f.client.CompleteFunc = func(ctx context.Context, _ fastgpt.Target, _ fastgpt.ChatRequest) (*fastgpt.ChatResponse, error) {
		close(started)
		<-ctx.Done()
		close(stopped)
		return nil, ctx.Err()
	}
	conn := dial(t, f.ts)

	req, err := NewRequest("slow", "chat.send", chat.SendRequest{Content: "take your time"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("chat never reached the upstream")
	}
	conn.Close()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("chat was not cancelled after disconnect")
	}
}
