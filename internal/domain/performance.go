package domain

import "time"

// Severity ranks a performance alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// BrowserMetricPrefix namespaces timings reported by clients so they never
// mix with the server's own metrics.
const BrowserMetricPrefix = "browser."

// MetricStats summarises timing samples in milliseconds.
type MetricStats struct {
	Count  int     `json:"count"`
	Errors int     `json:"errors"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// ErrorRate is the fraction of failed samples.
func (s MetricStats) ErrorRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Count)
}

// BenchmarkResult is the outcome of one benchmark run.
type BenchmarkResult struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Iterations  int           `json:"iterations"`
	Concurrency int           `json:"concurrency"`
	Stats       MetricStats   `json:"stats"`
	Throughput  float64       `json:"throughput"` // operations per second
	Score       float64       `json:"score"`
	Grade       string        `json:"grade"`
	Elapsed     time.Duration `json:"elapsed"`
	StartedAt   time.Time     `json:"startedAt"`
}

// PerformanceAlert is raised when a metric breaches a threshold rule.
type PerformanceAlert struct {
	ID           string    `json:"id"`
	Rule         string    `json:"rule"`
	Metric       string    `json:"metric"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	Value        float64   `json:"value"`
	Threshold    float64   `json:"threshold"`
	CreatedAt    time.Time `json:"createdAt"`
	Acknowledged bool      `json:"acknowledged"`
}
