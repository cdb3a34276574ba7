// Package performance samples operation timings, scores them against
// budgets, runs benchmarks and raises threshold alerts.
package performance

import (
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/aihub/agentdesk/internal/domain"
)

// DefaultWindow is the number of samples kept per metric.
const DefaultWindow = 1000

// SampleExporter receives every recorded sample, e.g. for Prometheus.
type SampleExporter interface {
	ObserveSample(name string, d time.Duration, failed bool)
}

// ring is a fixed-size window of the most recent samples of one metric.
type ring struct {
	ms     []float64
	failed []bool
	next   int
	full   bool
}

func newRing(size int) *ring {
	return &ring{ms: make([]float64, size), failed: make([]bool, size)}
}

func (r *ring) add(ms float64, failed bool) {
	r.ms[r.next] = ms
	r.failed[r.next] = failed
	r.next++
	if r.next == len(r.ms) {
		r.next = 0
		r.full = true
	}
}

func (r *ring) values() ([]float64, int) {
	n := r.next
	if r.full {
		n = len(r.ms)
	}
	vals := make([]float64, n)
	copy(vals, r.ms[:n])
	errs := 0
	for _, f := range r.failed[:n] {
		if f {
			errs++
		}
	}
	return vals, errs
}

// Monitor keeps a bounded window of timing samples per metric name. It is
// safe for concurrent use.
type Monitor struct {
	mu       sync.Mutex
	window   int
	series   map[string]*ring
	budgets  map[string]float64
	exporter SampleExporter
}

// NewMonitor creates a monitor. budgets maps metric names to p95 budgets in
// milliseconds; window <= 0 uses DefaultWindow.
func NewMonitor(window int, budgets map[string]float64) *Monitor {
	if window <= 0 {
		window = DefaultWindow
	}
	b := maps.Clone(budgets)
	if b == nil {
		b = map[string]float64{}
	}
	return &Monitor{
		window:  window,
		series:  make(map[string]*ring),
		budgets: b,
	}
}

// SetExporter forwards every future sample to e.
func (m *Monitor) SetExporter(e SampleExporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exporter = e
}

// Record adds one sample.
func (m *Monitor) Record(name string, d time.Duration, failed bool) {
	m.mu.Lock()
	r, ok := m.series[name]
	if !ok {
		r = newRing(m.window)
		m.series[name] = r
	}
	r.add(float64(d)/float64(time.Millisecond), failed)
	exp := m.exporter
	m.mu.Unlock()

	if exp != nil {
		exp.ObserveSample(name, d, failed)
	}
}

// Track starts timing name and returns a function that records the sample.
//
//	done := mon.Track("fastgpt.completion")
//	err := call()
//	done(err)
func (m *Monitor) Track(name string) func(err error) {
	start := time.Now()
	return func(err error) {
		m.Record(name, time.Since(start), err != nil)
	}
}

// ObserveUpstream records an upstream call as the sample "upstream.<op>".
func (m *Monitor) ObserveUpstream(op string, d time.Duration, err error) {
	m.Record("upstream."+op, d, err != nil)
}

// Stats returns the statistics of one metric.
func (m *Monitor) Stats(name string) (domain.MetricStats, bool) {
	m.mu.Lock()
	r, ok := m.series[name]
	if !ok {
		m.mu.Unlock()
		return domain.MetricStats{}, false
	}
	vals, errs := r.values()
	m.mu.Unlock()
	return ComputeStats(vals, errs), true
}

// Snapshot returns statistics for every metric.
func (m *Monitor) Snapshot() map[string]domain.MetricStats {
	m.mu.Lock()
	raw := make(map[string][]float64, len(m.series))
	errs := make(map[string]int, len(m.series))
	for name, r := range m.series {
		raw[name], errs[name] = r.values()
	}
	m.mu.Unlock()

	out := make(map[string]domain.MetricStats, len(raw))
	for name, vals := range raw {
		out[name] = ComputeStats(vals, errs[name])
	}
	return out
}

// Budgets returns a copy of the configured budgets.
func (m *Monitor) Budgets() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.budgets)
}

// SetBudget sets the p95 budget of a metric in milliseconds.
func (m *Monitor) SetBudget(name string, ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgets[name] = ms
}

// Forget drops the samples of one metric and, when the exporter supports
// it, the exported series.
func (m *Monitor) Forget(name string) {
	m.mu.Lock()
	delete(m.series, name)
	exp := m.exporter
	m.mu.Unlock()

	if f, ok := exp.(interface{ ForgetSample(name string) }); ok {
		f.ForgetSample(name)
	}
}

// Len returns the number of metrics with samples.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.series)
}

// Reset drops all samples.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series = make(map[string]*ring)
}

// ComputeStats summarises millisecond samples. Percentiles use the
// nearest-rank method.
func ComputeStats(ms []float64, errors int) domain.MetricStats {
	s := domain.MetricStats{Count: len(ms), Errors: errors}
	if len(ms) == 0 {
		return s
	}
	sorted := slices.Clone(ms)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Mean = sum / float64(len(sorted))
	s.P50 = percentile(sorted, 50)
	s.P95 = percentile(sorted, 95)
	s.P99 = percentile(sorted, 99)
	return s
}

func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
