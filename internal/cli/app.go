package cli

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aihub/agentdesk/internal/agents"
	"github.com/aihub/agentdesk/internal/chat"
	"github.com/aihub/agentdesk/internal/config"
	"github.com/aihub/agentdesk/internal/domain"
	"github.com/aihub/agentdesk/internal/fastgpt"
	"github.com/aihub/agentdesk/internal/files"
	"github.com/aihub/agentdesk/internal/gateway"
	"github.com/aihub/agentdesk/internal/hooks"
	"github.com/aihub/agentdesk/internal/logging"
	"github.com/aihub/agentdesk/internal/performance"
	"github.com/aihub/agentdesk/internal/proxy"
	"github.com/aihub/agentdesk/internal/retry"
	"github.com/aihub/agentdesk/internal/store"
)

const (
	cadCacheSize = 128
	cadCacheTTL  = time.Hour
	historySize  = 50
	checkTimeout = 10 * time.Second
)

// defaultAlertRules apply when the config defines none.
var defaultAlertRules = []performance.AlertRule{
	{Metric: "chat.send", Stat: "p95", Op: ">", Threshold: 10000, Severity: domain.SeverityWarning},
	{Metric: "fastgpt.completion", Stat: "errorRate", Op: ">", Threshold: 0.2, Severity: domain.SeverityCritical},
	{Metric: "proxy.forward", Stat: "errorRate", Op: ">", Threshold: 0.2, Severity: domain.SeverityWarning},
}

// app holds every service built from one config. Commands open it, use
// the parts they need and close it.
type app struct {
	cfg config.Config
	log *logging.Logger

	db       *store.DB
	prefs    *store.Preferences
	agents   *agents.Registry
	sessions store.ChatStore
	hooks    *hooks.Manager

	client fastgpt.Client
	runner *chat.Runner

	proxy    *proxy.Proxy
	files    *files.Store
	analyzer *files.Analyzer

	monitor  *performance.Monitor
	alerts   *performance.AlertManager
	history  *performance.History
	metrics  *performance.Metrics
	registry *prometheus.Registry
	checker  *retry.Checker
}

// openApp opens the database at p and wires the services described by cfg.
func openApp(cfg config.Config, p config.Paths, log *logging.Logger) (*app, error) {
	if err := p.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating data directories: %w", err)
	}

	db, err := store.Open(p.Database(), log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a := &app{cfg: cfg, log: log, db: db}
	if err := a.wire(p); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(p config.Paths) error {
	cfg, log := a.cfg, a.log

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := performance.NewMetrics("agentdesk", a.registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	a.metrics = metrics
	a.db.SetObserver(metrics)

	a.monitor = performance.NewMonitor(cfg.Performance.SampleWindow, cfg.Performance.Budgets)
	a.monitor.SetExporter(metrics)
	a.history = performance.NewHistory(historySize)
	a.alerts = performance.NewAlertManager(alertRules(cfg.Performance.Alerts))

	a.hooks = hooks.NewManager(log)
	a.alerts.OnRaise(func(al domain.PerformanceAlert) {
		metrics.AlertRaised(string(al.Severity))
		a.hooks.Emit(context.Background(), hooks.EventAlertRaised, map[string]any{
			"id":       al.ID,
			"metric":   al.Metric,
			"severity": string(al.Severity),
			"message":  al.Message,
			"value":    al.Value,
		})
	})

	a.prefs = store.NewPreferences(a.db)
	a.agents = agents.NewRegistry(store.NewAgentStore(a.db), a.prefs, cfg.FastGPT, log)
	if n, err := a.agents.Seed(cfg.Agents); err != nil {
		return fmt.Errorf("seeding agents: %w", err)
	} else if n > 0 {
		log.Info().Int("count", n).Msg("seeded agents from config")
	}

	switch cfg.Session.Store {
	case "memory":
		a.sessions = store.NewMemoryChatStore(cfg.Session.MaxMessages)
		log.Info().Msg("using in-memory chat store")
	default:
		a.sessions = store.NewSQLiteChatStore(a.db, cfg.Session.MaxMessages)
		log.Info().Str("path", p.Database()).Msg("using SQLite chat store")
	}

	a.client = fastgpt.NewHTTPClient(fastgpt.Options{
		Timeout:    time.Duration(cfg.FastGPT.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.FastGPT.MaxRetries,
		Logger:     log,
		Observers:  []fastgpt.Observer{a.monitor, metrics},
	})
	a.runner = chat.NewRunner(a.agents, a.sessions, a.client, a.hooks, log)
	a.runner.SetTracker(a.monitor)

	a.proxy = proxy.New(proxy.Config{
		AllowedHosts: cfg.Proxy.AllowedHosts,
		Timeout:      time.Duration(cfg.Proxy.TimeoutSeconds) * time.Second,
		MaxBodyBytes: cfg.Proxy.MaxBodyBytes,
		MaxRetries:   cfg.FastGPT.MaxRetries,
	}, log, a.monitor, metrics)

	dir := cfg.Uploads.Dir
	if dir == "" {
		dir = p.Uploads
	} else if !filepath.IsAbs(dir) {
		dir = filepath.Join(p.Base, dir)
	}
	fs, err := files.NewStore(dir, int64(cfg.Uploads.MaxSizeMB)<<20, log)
	if err != nil {
		return fmt.Errorf("opening uploads: %w", err)
	}
	a.files = fs
	a.analyzer = files.NewAnalyzer(fs, a.prefs, cadCacheSize, cadCacheTTL, log)
	a.analyzer.SetTracker(a.monitor)

	checkURL := cfg.Performance.CheckURL
	if checkURL == "" {
		checkURL = cfg.FastGPT.BaseURL
	}
	if checkURL != "" {
		a.checker = retry.NewChecker(checkURL,
			time.Duration(cfg.Performance.CheckIntervalSeconds)*time.Second,
			&http.Client{Timeout: checkTimeout}, log)
	}
	return nil
}

// gatewayOptions hands every service to the gateway server.
func (a *app) gatewayOptions(raw map[string]any) []gateway.ServerOption {
	opts := []gateway.ServerOption{
		gateway.WithHooks(a.hooks),
		gateway.WithChat(a.runner),
		gateway.WithAgents(a.agents),
		gateway.WithSessions(a.sessions),
		gateway.WithPreferences(a.prefs),
		gateway.WithProxy(a.proxy),
		gateway.WithFiles(a.files, a.analyzer),
		gateway.WithPerformance(a.monitor, a.alerts, a.history),
		gateway.WithMetrics(a.metrics, a.registry),
	}
	if raw != nil {
		opts = append(opts, gateway.WithConfigRaw(raw))
	}
	if a.checker != nil {
		opts = append(opts, gateway.WithChecker(a.checker))
	}
	return opts
}

// openConfiguredApp loads the config file and opens the app for it.
func openConfiguredApp() (*app, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, err
	}
	return openApp(cfg, paths, log)
}

// Close releases the database.
func (a *app) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// alertRules converts configured rules, falling back to defaultAlertRules.
func alertRules(entries []config.AlertRuleEntry) []performance.AlertRule {
	if len(entries) == 0 {
		return defaultAlertRules
	}
	rules := make([]performance.AlertRule, 0, len(entries))
	for _, e := range entries {
		rules = append(rules, performance.AlertRule{
			Metric:    e.Metric,
			Stat:      e.Stat,
			Op:        e.Op,
			Threshold: e.Threshold,
			Severity:  domain.Severity(e.Severity),
		})
	}
	return rules
}
