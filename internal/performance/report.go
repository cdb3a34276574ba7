package performance

import (
	"math"
	"slices"
	"time"

	"golang.org/x/text/language"

	"github.com/aihub/agentdesk/internal/domain"
	"github.com/aihub/agentdesk/internal/optimization"
)

// MetricReport is one metric's line in a report.
type MetricReport struct {
	Name   string             `json:"name"`
	Stats  domain.MetricStats `json:"stats"`
	Budget float64            `json:"budget,omitempty"`
	Score  float64            `json:"score"`
	Grade  string             `json:"grade"`
}

// Report is the dashboard summary of the current performance state.
type Report struct {
	GeneratedAt time.Time                 `json:"generatedAt"`
	Score       float64                   `json:"score"`
	Grade       string                    `json:"grade"`
	Metrics     []MetricReport            `json:"metrics"`
	Alerts      []domain.PerformanceAlert `json:"alerts"`
	Benchmarks  []domain.BenchmarkResult  `json:"benchmarks"`
	Suggestions []domain.Optimization     `json:"suggestions"`
	Analysis    optimization.Analysis     `json:"analysis"`
}

// BuildReport scores every metric, averages the scores into an overall grade
// and derives optimization suggestions. With no samples the overall score
// is 100.
func BuildReport(snapshot map[string]domain.MetricStats, budgets map[string]float64,
	alerts []domain.PerformanceAlert, benchmarks []domain.BenchmarkResult, lang language.Tag) Report {

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	slices.Sort(names)

	r := Report{
		GeneratedAt: time.Now().UTC(),
		Metrics:     make([]MetricReport, 0, len(names)),
		Alerts:      alerts,
		Benchmarks:  benchmarks,
	}
	if r.Alerts == nil {
		r.Alerts = []domain.PerformanceAlert{}
	}
	if r.Benchmarks == nil {
		r.Benchmarks = []domain.BenchmarkResult{}
	}

	var total float64
	scored := 0
	for _, name := range names {
		s := snapshot[name]
		budget := budgets[name]
		score := Score(s, budget)
		r.Metrics = append(r.Metrics, MetricReport{
			Name:   name,
			Stats:  s,
			Budget: budget,
			Score:  score,
			Grade:  Grade(score),
		})
		if s.Count > 0 {
			total += score
			scored++
		}
	}

	r.Score = 100
	if scored > 0 {
		r.Score = math.Round(total/float64(scored)*10) / 10
	}
	r.Grade = Grade(r.Score)

	r.Suggestions = optimization.SuggestFromMetrics(snapshot, budgets, lang)
	r.Analysis = optimization.PerformOptimizationAnalysis(r.Suggestions)
	return r
}
