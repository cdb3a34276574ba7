package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/text/language"

	"github.com/aihub/agentdesk/internal/domain"
	"github.com/aihub/agentdesk/internal/i18n"
	"github.com/aihub/agentdesk/internal/optimization"
	"github.com/aihub/agentdesk/internal/performance"
	"github.com/aihub/agentdesk/internal/retry"
)

// Benchmark limits for one request.
const (
	maxBenchIterations  = 10000
	maxBenchConcurrency = 64
)

func requestLang(r *http.Request) language.Tag {
	if l := r.URL.Query().Get("lang"); l != "" {
		return i18n.Negotiate(l)
	}
	return i18n.Negotiate(r.Header.Get("Accept-Language"))
}

// OptimizationResult is a filtered suggestion list with its analysis.
type OptimizationResult struct {
	Optimizations []domain.Optimization `json:"optimizations"`
	Analysis      optimization.Analysis `json:"analysis"`
}

// suggestions returns the catalog, the metric-derived suggestions, or both
// when source is empty.
func (s *Server) suggestions(source string, lang language.Tag) []domain.Optimization {
	var out []domain.Optimization
	if source == "" || source == "catalog" {
		out = append(out, optimization.DefaultCatalog(lang)...)
	}
	if (source == "" || source == "metrics") && s.monitor != nil {
		out = append(out, optimization.SuggestFromMetrics(s.monitor.Snapshot(), s.monitor.Budgets(), lang)...)
	}
	return out
}

func (s *Server) analyzeOptimizations(source string, f optimization.Filters, lang language.Tag) OptimizationResult {
	return analyze(s.suggestions(source, lang), f)
}

func analyze(opts []domain.Optimization, f optimization.Filters) OptimizationResult {
	filtered := optimization.FilterOptimizations(opts, f)
	if filtered == nil {
		filtered = []domain.Optimization{}
	}
	return OptimizationResult{
		Optimizations: filtered,
		Analysis:      optimization.PerformOptimizationAnalysis(filtered),
	}
}

func (s *Server) handleListOptimizations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := optimization.Filters{
		Category:   q.Get("category"),
		Impact:     q.Get("impact"),
		Difficulty: q.Get("difficulty"),
	}
	writeJSON(w, http.StatusOK, s.analyzeOptimizations(q.Get("source"), f, requestLang(r)))
}

type analyzeRequest struct {
	// Optimizations, when set, is analyzed instead of the built-in list.
	Optimizations []domain.Optimization `json:"optimizations,omitempty"`
	Filters       optimization.Filters  `json:"filters"`
	Source        string                `json:"source,omitempty"`
}

func (s *Server) handleAnalyzeOptimizations(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Optimizations != nil {
		writeJSON(w, http.StatusOK, analyze(req.Optimizations, req.Filters))
		return
	}
	writeJSON(w, http.StatusOK, s.analyzeOptimizations(req.Source, req.Filters, requestLang(r)))
}

// Sample is one client-side timing reported to the dashboard. It is
// recorded as "browser.<name>".
type Sample struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"durationMs"`
	Failed     bool    `json:"failed,omitempty"`
}

type samplesRequest struct {
	Samples []Sample `json:"samples"`
}

// RejectedSample reports a sample that was not recorded.
type RejectedSample struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

const maxSamplesPerRequest = 500

func (s *Server) handleRecordSamples(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil || s.samples == nil {
		writeErr(w, unavailable("performance monitor"))
		return
	}
	var req samplesRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if len(req.Samples) > maxSamplesPerRequest {
		writeErr(w, invalid("at most %d samples per request", maxSamplesPerRequest))
		return
	}

	recorded := 0
	rejected := []RejectedSample{}
	for _, sm := range req.Samples {
		if _, err := s.samples.Record(sm.Name, sm.DurationMS, sm.Failed); err != nil {
			rejected = append(rejected, RejectedSample{Name: sm.Name, Reason: err.Error()})
			continue
		}
		recorded++
	}
	if len(rejected) > 0 {
		s.log.Debug().Int("rejected", len(rejected)).Str("remote", r.RemoteAddr).Msg("client samples rejected")
	}
	raised := s.evaluateAlerts()
	if raised == nil {
		raised = []domain.PerformanceAlert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"recorded": recorded, "rejected": rejected, "alerts": raised})
}

func (s *Server) evaluateAlerts() []domain.PerformanceAlert {
	if s.alerts == nil || s.monitor == nil {
		return nil
	}
	return s.alerts.Evaluate(s.monitor.Snapshot())
}

func (s *Server) evaluateAlertsLoop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if raised := s.evaluateAlerts(); len(raised) > 0 {
				s.log.Info().Int("count", len(raised)).Msg("performance alerts raised")
			}
		}
	}
}

func (s *Server) performanceReport(lang language.Tag) (performance.Report, error) {
	if s.monitor == nil {
		return performance.Report{}, unavailable("performance monitor")
	}
	var (
		alerts     []domain.PerformanceAlert
		benchmarks []domain.BenchmarkResult
	)
	if s.alerts != nil {
		alerts = s.alerts.Active()
	}
	if s.benchmarks != nil {
		benchmarks = s.benchmarks.List()
	}
	return performance.BuildReport(s.monitor.Snapshot(), s.monitor.Budgets(), alerts, benchmarks, lang), nil
}

func (s *Server) handlePerformanceReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.performanceReport(requestLang(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeErr(w, unavailable("alerts"))
		return
	}
	list := s.alerts.Active()
	if r.URL.Query().Get("all") == "true" {
		list = s.alerts.All()
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": list})
}

func (s *Server) handleAckAlert(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeErr(w, unavailable("alerts"))
		return
	}
	id := r.PathValue("id")
	if err := s.alerts.Acknowledge(id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "acknowledged": true})
}

// BenchmarkTargets maps the operations that can be benchmarked to the
// function running one iteration.
func (s *Server) BenchmarkTargets() map[string]func(ctx context.Context) error {
	targets := map[string]func(ctx context.Context) error{
		"optimization.analyze": func(context.Context) error {
			optimization.PerformOptimizationAnalysis(optimization.DefaultCatalog(language.English))
			return nil
		},
	}
	if s.sessions != nil {
		targets["sessions.list"] = func(context.Context) error {
			s.sessions.GetAllChatSessions()
			return nil
		}
		targets["sessions.search"] = func(context.Context) error {
			s.sessions.SearchChatSessions("a")
			return nil
		}
	}
	if s.agents != nil {
		targets["agents.list"] = func(context.Context) error {
			_, err := s.agents.List(false)
			return err
		}
	}
	if s.checker != nil {
		targets["upstream.check"] = func(ctx context.Context) error {
			st := s.checker.Check(ctx)
			if st.State != retry.StateOnline {
				return errors.New(st.LastError)
			}
			return nil
		}
	}
	return targets
}

type benchmarkRequest struct {
	Target      string  `json:"target"`
	Name        string  `json:"name,omitempty"`
	Iterations  int     `json:"iterations"`
	Concurrency int     `json:"concurrency,omitempty"`
	Budget      float64 `json:"budget,omitempty"`
	// CompareWith is the id of an earlier run to compare against.
	CompareWith string `json:"compareWith,omitempty"`
}

func (s *Server) handleRunBenchmark(w http.ResponseWriter, r *http.Request) {
	var req benchmarkRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	fn, ok := s.BenchmarkTargets()[req.Target]
	if !ok {
		writeErr(w, invalid("unknown benchmark target %q", req.Target))
		return
	}
	if req.Iterations <= 0 || req.Iterations > maxBenchIterations {
		writeErr(w, invalid("iterations must be between 1 and %d", maxBenchIterations))
		return
	}
	if req.Concurrency > maxBenchConcurrency {
		req.Concurrency = maxBenchConcurrency
	}
	if req.Name == "" {
		req.Name = req.Target
	}
	if req.Budget == 0 && s.monitor != nil {
		req.Budget = s.monitor.Budgets()[req.Target]
	}

	var prev *domain.BenchmarkResult
	if req.CompareWith != "" {
		if s.benchmarks == nil {
			writeErr(w, unavailable("benchmark history"))
			return
		}
		p, err := s.benchmarks.Get(req.CompareWith)
		if err != nil {
			writeErr(w, err)
			return
		}
		prev = &p
	}

	res, err := performance.Run(r.Context(), performance.BenchmarkOptions{
		Name:        req.Name,
		Iterations:  req.Iterations,
		Concurrency: req.Concurrency,
		Budget:      req.Budget,
	}, fn)
	if err != nil {
		writeErr(w, err)
		return
	}
	if s.benchmarks != nil {
		s.benchmarks.Add(res)
	}

	body := map[string]any{"result": res}
	if prev != nil {
		body["comparison"] = performance.Compare(*prev, res)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleListBenchmarks(w http.ResponseWriter, r *http.Request) {
	if s.benchmarks == nil {
		writeErr(w, unavailable("benchmark history"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"benchmarks": s.benchmarks.List()})
}

// StatusResponse reports gateway and upstream connectivity.
type StatusResponse struct {
	Version  string        `json:"version"`
	Uptime   string        `json:"uptime,omitempty"`
	Clients  int           `json:"clients"`
	InFlight int           `json:"inFlight"`
	Upstream *retry.Status `json:"upstream,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version: s.version,
		Clients: s.clients.Count(),
	}
	if !s.startedAt.IsZero() {
		resp.Uptime = time.Since(s.startedAt).Round(time.Second).String()
	}
	if s.chat != nil {
		resp.InFlight = s.chat.InFlight()
	}
	if s.checker != nil {
		st := s.checker.Status()
		if r.URL.Query().Get("refresh") == "true" {
			st = s.checker.Check(r.Context())
		}
		resp.Upstream = &st
	}
	writeJSON(w, http.StatusOK, resp)
}
