package performance

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports gateway, upstream, store and sample timings to Prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	httpDuration     *prometheus.HistogramVec
	upstreamDuration *prometheus.HistogramVec
	upstreamErrors   *prometheus.CounterVec
	storeDuration    *prometheus.HistogramVec
	storeErrors      *prometheus.CounterVec
	sampleDuration   *prometheus.HistogramVec
	alertsRaised     *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. Collectors that are already
// registered are reused, so calling it twice with one registry is safe.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = "agentdesk"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of gateway HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Latency of requests to FastGPT and proxied targets.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Count of failed upstream requests.",
		}, []string{"operation"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Latency of store operations.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, 1},
		}, []string{"operation"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_errors_total",
			Help:      "Count of failed store operations.",
		}, []string{"operation"}),
		sampleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "sample_duration_seconds",
			Help:      "Timing samples recorded by the performance monitor.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"metric", "failed"}),
		alertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "alerts_raised_total",
			Help:      "Count of performance alerts raised.",
		}, []string{"severity"}),
	}

	if err := register(reg, &m.httpDuration); err != nil {
		return nil, err
	}
	if err := register(reg, &m.upstreamDuration); err != nil {
		return nil, err
	}
	if err := register(reg, &m.upstreamErrors); err != nil {
		return nil, err
	}
	if err := register(reg, &m.storeDuration); err != nil {
		return nil, err
	}
	if err := register(reg, &m.storeErrors); err != nil {
		return nil, err
	}
	if err := register(reg, &m.sampleDuration); err != nil {
		return nil, err
	}
	if err := register(reg, &m.alertsRaised); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, swapping in the existing collector when an
// identical one is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				*c = existing
				return nil
			}
		}
		return fmt.Errorf("register metric: %w", err)
	}
	return nil
}

// ObserveHTTP records one gateway request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// ObserveUpstream records one upstream request.
func (m *Metrics) ObserveUpstream(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		m.upstreamErrors.WithLabelValues(op).Inc()
	}
}

// ObserveStoreOp records one store operation.
func (m *Metrics) ObserveStoreOp(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.storeDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		m.storeErrors.WithLabelValues(op).Inc()
	}
}

// ObserveSample mirrors a monitor sample.
func (m *Metrics) ObserveSample(name string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.sampleDuration.WithLabelValues(name, strconv.FormatBool(failed)).Observe(d.Seconds())
}

// ForgetSample removes the series exported for a monitor metric.
func (m *Metrics) ForgetSample(name string) {
	if m == nil {
		return
	}
	m.sampleDuration.DeleteLabelValues(name, "true")
	m.sampleDuration.DeleteLabelValues(name, "false")
}

// AlertRaised counts a raised alert.
func (m *Metrics) AlertRaised(severity string) {
	if m == nil {
		return
	}
	m.alertsRaised.WithLabelValues(severity).Inc()
}
