package performance

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/aihub/agentdesk/internal/domain"
	"github.com/aihub/agentdesk/internal/i18n"
)

// ErrAlertNotFound is returned when acknowledging an unknown alert.
var ErrAlertNotFound = errors.New("alert not found")

// maxAlertHistory bounds the number of alerts kept in memory.
const maxAlertHistory = 200

// AlertRule raises an alert when Stat of Metric crosses Threshold.
type AlertRule struct {
	Metric    string          `json:"metric"`
	Stat      string          `json:"stat"` // mean, p50, p95, p99, max, errorRate
	Op        string          `json:"op"`   // ">" or "<"
	Threshold float64         `json:"threshold"`
	Severity  domain.Severity `json:"severity"`
}

// Key identifies the rule for deduplication.
func (r AlertRule) Key() string {
	return fmt.Sprintf("%s:%s%s%g", r.Metric, r.stat(), r.op(), r.Threshold)
}

func (r AlertRule) stat() string {
	if r.Stat == "" {
		return "p95"
	}
	return r.Stat
}

func (r AlertRule) op() string {
	if r.Op == "" {
		return ">"
	}
	return r.Op
}

func (r AlertRule) severity() domain.Severity {
	if r.Severity == "" {
		return domain.SeverityWarning
	}
	return r.Severity
}

func (r AlertRule) breached(v float64) bool {
	if r.op() == "<" {
		return v < r.Threshold
	}
	return v > r.Threshold
}

// StatValue extracts a named statistic.
func StatValue(s domain.MetricStats, stat string) (float64, bool) {
	switch stat {
	case "mean":
		return s.Mean, true
	case "p50":
		return s.P50, true
	case "", "p95":
		return s.P95, true
	case "p99":
		return s.P99, true
	case "max":
		return s.Max, true
	case "errorRate":
		return s.ErrorRate(), true
	}
	return 0, false
}

// AlertManager evaluates rules against metric snapshots. At most one
// unresolved alert exists per rule; it resolves when the rule stops
// breaching.
type AlertManager struct {
	mu      sync.Mutex
	rules   []AlertRule
	alerts  []domain.PerformanceAlert // newest last
	active  map[string]string         // rule key -> alert id
	onRaise func(domain.PerformanceAlert)
	lang    language.Tag
	now     func() time.Time
}

// NewAlertManager creates a manager for the given rules.
func NewAlertManager(rules []AlertRule) *AlertManager {
	return &AlertManager{
		rules:  slices.Clone(rules),
		active: make(map[string]string),
		lang:   language.English,
		now:    time.Now,
	}
}

// OnRaise registers a callback invoked for every new alert, outside the lock.
func (m *AlertManager) OnRaise(fn func(domain.PerformanceAlert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRaise = fn
}

// SetLanguage selects the language of alert messages.
func (m *AlertManager) SetLanguage(tag language.Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lang = tag
}

// Rules returns the configured rules.
func (m *AlertManager) Rules() []AlertRule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.rules)
}

// Evaluate checks every rule against snapshot and returns newly raised
// alerts. Metrics absent from the snapshot are skipped.
func (m *AlertManager) Evaluate(snapshot map[string]domain.MetricStats) []domain.PerformanceAlert {
	m.mu.Lock()
	var raised []domain.PerformanceAlert
	for _, r := range m.rules {
		s, ok := snapshot[r.Metric]
		if !ok || s.Count == 0 {
			continue
		}
		v, ok := StatValue(s, r.stat())
		if !ok {
			continue
		}
		key := r.Key()
		if !r.breached(v) {
			delete(m.active, key)
			continue
		}
		if _, dup := m.active[key]; dup {
			continue
		}
		a := domain.PerformanceAlert{
			ID:        uuid.NewString(),
			Rule:      key,
			Metric:    r.Metric,
			Severity:  r.severity(),
			Message:   m.message(r, v),
			Value:     v,
			Threshold: r.Threshold,
			CreatedAt: m.now().UTC(),
		}
		m.active[key] = a.ID
		m.alerts = append(m.alerts, a)
		raised = append(raised, a)
	}
	if over := len(m.alerts) - maxAlertHistory; over > 0 {
		m.alerts = slices.Clone(m.alerts[over:])
	}
	cb := m.onRaise
	m.mu.Unlock()

	if cb != nil {
		for _, a := range raised {
			cb(a)
		}
	}
	return raised
}

func (m *AlertManager) message(r AlertRule, v float64) string {
	return i18n.Text{
		EN: fmt.Sprintf("%s %s is %.2f (threshold %s %.2f)", r.Metric, r.stat(), v, r.op(), r.Threshold),
		ZH: fmt.Sprintf("%s 的 %s 为 %.2f（阈值 %s %.2f）", r.Metric, r.stat(), v, r.op(), r.Threshold),
	}.In(m.lang)
}

// Acknowledge marks an alert as seen. The alert keeps suppressing duplicates
// until its rule recovers.
func (m *AlertManager) Acknowledge(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].Acknowledged = true
			return nil
		}
	}
	return ErrAlertNotFound
}

// Active returns unresolved, unacknowledged alerts, newest first.
func (m *AlertManager) Active() []domain.PerformanceAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	activeIDs := make(map[string]bool, len(m.active))
	for _, id := range m.active {
		activeIDs[id] = true
	}
	out := []domain.PerformanceAlert{}
	for i := len(m.alerts) - 1; i >= 0; i-- {
		a := m.alerts[i]
		if activeIDs[a.ID] && !a.Acknowledged {
			out = append(out, a)
		}
	}
	return out
}

// All returns every retained alert, newest first.
func (m *AlertManager) All() []domain.PerformanceAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PerformanceAlert, 0, len(m.alerts))
	for i := len(m.alerts) - 1; i >= 0; i-- {
		out = append(out, m.alerts[i])
	}
	return out
}
