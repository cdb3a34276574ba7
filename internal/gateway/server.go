package gateway

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/aihub/agentdesk/internal/agents"
	"github.com/aihub/agentdesk/internal/chat"
	"github.com/aihub/agentdesk/internal/config"
	"github.com/aihub/agentdesk/internal/files"
	"github.com/aihub/agentdesk/internal/hooks"
	"github.com/aihub/agentdesk/internal/logging"
	"github.com/aihub/agentdesk/internal/performance"
	"github.com/aihub/agentdesk/internal/proxy"
	"github.com/aihub/agentdesk/internal/retry"
	"github.com/aihub/agentdesk/internal/store"
	"github.com/aihub/agentdesk/internal/version"
)

const (
	// alertInterval is how often alert rules are evaluated.
	alertInterval   = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Server is the agentdesk gateway HTTP + WebSocket server.
type Server struct {
	cfg      config.Config
	auth     ResolvedAuth
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	version  string
	eventSeq atomic.Int64

	mu        sync.RWMutex
	configRaw map[string]any

	// Services; each is optional and its routes answer 503 when nil.
	chat       *chat.Runner
	agents     *agents.Registry
	sessions   store.ChatStore
	prefs      *store.Preferences
	proxy      *proxy.Proxy
	uploads    *files.Store
	cad        *files.Analyzer
	monitor    *performance.Monitor
	samples    *performance.ClientSamples
	alerts     *performance.AlertManager
	benchmarks *performance.History
	metrics    *performance.Metrics
	gatherer   prometheus.Gatherer
	checker    *retry.Checker
	hooks      *hooks.Manager

	startedAt   time.Time
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithConfigRaw sets the raw config map for RPC access.
func WithConfigRaw(raw map[string]any) ServerOption {
	return func(s *Server) {
		s.configRaw = raw
	}
}

// WithHooks sets the hook manager for lifecycle events. Every hook event is
// also broadcast to connected clients.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// WithChat sets the chat runner for chat.send and POST /api/chat.
func WithChat(r *chat.Runner) ServerOption {
	return func(s *Server) {
		s.chat = r
	}
}

// WithAgents sets the agent registry.
func WithAgents(reg *agents.Registry) ServerOption {
	return func(s *Server) {
		s.agents = reg
	}
}

// WithSessions sets the chat history store.
func WithSessions(st store.ChatStore) ServerOption {
	return func(s *Server) {
		s.sessions = st
	}
}

// WithPreferences sets the preference store.
func WithPreferences(p *store.Preferences) ServerOption {
	return func(s *Server) {
		s.prefs = p
	}
}

// WithProxy sets the chat proxy.
func WithProxy(p *proxy.Proxy) ServerOption {
	return func(s *Server) {
		s.proxy = p
	}
}

// WithFiles sets the upload store and CAD analyzer.
func WithFiles(st *files.Store, an *files.Analyzer) ServerOption {
	return func(s *Server) {
		s.uploads = st
		s.cad = an
	}
}

// WithPerformance sets the sample monitor, alert manager and benchmark
// history behind the performance dashboard.
func WithPerformance(m *performance.Monitor, a *performance.AlertManager, h *performance.History) ServerOption {
	return func(s *Server) {
		s.monitor = m
		if m != nil {
			s.samples = performance.NewClientSamples(m, performance.DefaultClientSeries, performance.DefaultClientSeriesTTL)
		}
		s.alerts = a
		s.benchmarks = h
	}
}

// WithMetrics sets the Prometheus collectors and the gatherer served on
// /metrics.
func WithMetrics(m *performance.Metrics, g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithChecker sets the upstream connection checker behind /api/status.
func WithChecker(c *retry.Checker) ServerOption {
	return func(s *Server) {
		s.checker = c
	}
}

// New creates a new gateway server.
func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) *Server {
	allowedOrigins := cfg.Gateway.ControlUI.AllowedOrigins
	s := &Server{
		cfg:         cfg,
		auth:        ResolveAuth(cfg.Gateway.Auth),
		log:         log.Sub("gateway"),
		clients:     NewClientRegistry(log.Sub("clients")),
		handlers:    make(map[string]RequestHandler),
		version:     version.Version,
		configRaw:   make(map[string]any),
		authLimiter: newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(allowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.hooks != nil {
		s.hooks.OnAll("gateway.broadcast", func(_ context.Context, p hooks.Payload) error {
			s.Broadcast(EventHook, p)
			return nil
		})
	}
	if s.checker != nil {
		s.checker.OnChange(func(st retry.Status) {
			s.Broadcast(EventConnectionStatus, st)
		})
	}

	s.registerRPCHandlers()
	return s
}

// Broadcast sends an event to every connected client.
func (s *Server) Broadcast(event string, payload any) {
	s.clients.Broadcast(event, payload, s.eventSeq.Add(1))
}

// Handler returns the HTTP handler with the full middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)

	var obs []HTTPObserver
	if s.metrics != nil {
		obs = append(obs, s.metrics)
	}
	return chain(mux,
		accessLog(s.log, obs...),
		recoverPanics(s.log),
		requestID,
		cors(s.cfg.Gateway.ControlUI.AllowedOrigins),
		requireAuth(s.auth, s.authLimiter),
	)
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the registered RPC method names in order.
func (s *Server) Methods() []string {
	return slices.Sorted(maps.Keys(s.handlers))
}

// resolveBindAddr maps the bind mode to a listen address. Unknown modes
// fall back to loopback.
func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan", "auto":
		host = "0.0.0.0"
	case "custom":
		host = cmp.Or(cfg.CustomBindHost, "0.0.0.0")
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

// listen opens the TCP listener, wrapped in TLS when configured.
func (s *Server) listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	tlsCfg := s.cfg.Gateway.TLS
	if !tlsCfg.Enabled {
		if s.cfg.Gateway.Bind != "loopback" {
			s.log.Warn().Msg("TLS is not enabled, credentials will be transmitted in cleartext")
		}
		return ln, nil
	}
	cert, err := tls.LoadX509KeyPair(tlsCfg.CertPath, tlsCfg.KeyPath)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	s.log.Info().Msg("TLS enabled")
	return tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

// Start serves HTTP and WebSocket traffic together with the upstream
// checker and the alert loop. It blocks until ctx is cancelled or serving
// fails, then closes every client and drains open requests.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.listen(resolveBindAddr(s.cfg.Gateway))
	if err != nil {
		return err
	}
	addr := ln.Addr().String()

	// No WriteTimeout: chat streams and proxied event streams stay open
	// for as long as the upstream answers.
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", addr).
		Str("bind", s.cfg.Gateway.Bind).
		Str("auth", s.auth.Mode).
		Int("methods", len(s.handlers)).
		Msg("gateway server ready")
	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": addr})
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.checker != nil {
		g.Go(func() error {
			s.checker.Run(gctx)
			return nil
		})
	}
	if s.alerts != nil && s.monitor != nil {
		g.Go(func() error {
			s.evaluateAlertsLoop(gctx, alertInterval)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		if s.hooks != nil {
			s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)
		}
		s.clients.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return g.Wait()
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}
