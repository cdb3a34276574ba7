package performance

import (
	"errors"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/aihub/agentdesk/internal/domain"
)

const (
	// DefaultClientSeries caps the distinct client metrics kept at once.
	DefaultClientSeries = 200
	// DefaultClientSeriesTTL drops a client metric that stopped reporting.
	DefaultClientSeriesTTL = 24 * time.Hour
	// MaxClientSampleMS is the longest accepted client timing (10 minutes).
	MaxClientSampleMS = 10 * 60 * 1000

	maxClientNameLen = 64
)

var (
	ErrSampleName     = errors.New("invalid sample name")
	ErrReservedSample = errors.New("sample name is reserved for server metrics")
	ErrSampleDuration = errors.New("sample duration out of range")
	ErrTooManySeries  = errors.New("too many client metric series")
)

// serverPrefixes are the namespaces the server records into itself.
var serverPrefixes = []string{
	"chat.", "rpc.", "upstream.", "store.", "http.", "gateway.",
	"fastgpt.", "proxy.", "cache.", "cad.",
}

// ClientSamples admits timings reported by browsers into a Monitor. Every
// metric lands under domain.BrowserMetricPrefix, at most limit distinct
// metrics exist at once and a metric idle for ttl is forgotten.
type ClientSamples struct {
	mon   *Monitor
	limit int

	mu     sync.Mutex
	series *expirable.LRU[string, struct{}]
}

func NewClientSamples(mon *Monitor, limit int, ttl time.Duration) *ClientSamples {
	if limit <= 0 {
		limit = DefaultClientSeries
	}
	if ttl <= 0 {
		ttl = DefaultClientSeriesTTL
	}
	return &ClientSamples{
		mon:   mon,
		limit: limit,
		series: expirable.NewLRU[string, struct{}](limit, func(name string, _ struct{}) {
			mon.Forget(name)
		}, ttl),
	}
}

// MetricName maps a client-supplied name to its namespaced metric. Names
// already carrying the browser prefix are kept; bare names in a server
// namespace are refused.
func MetricName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	rest, prefixed := strings.CutPrefix(name, domain.BrowserMetricPrefix)
	if rest == "" || len(rest) > maxClientNameLen || strings.ContainsFunc(rest, invalidNameRune) {
		return "", ErrSampleName
	}
	if !prefixed && slices.ContainsFunc(serverPrefixes, func(p string) bool { return strings.HasPrefix(rest, p) }) {
		return "", ErrReservedSample
	}
	return domain.BrowserMetricPrefix + rest, nil
}

func invalidNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case r == '.', r == '_', r == '-':
		return false
	}
	return true
}

// Record validates one client sample and records it. It returns the
// metric name the sample was stored under.
func (c *ClientSamples) Record(raw string, ms float64, failed bool) (string, error) {
	name, err := MetricName(raw)
	if err != nil {
		return "", err
	}
	if math.IsNaN(ms) || ms < 0 || ms > MaxClientSampleMS {
		return "", ErrSampleDuration
	}

	c.mu.Lock()
	if !c.series.Contains(name) && c.series.Len() >= c.limit {
		c.mu.Unlock()
		return "", ErrTooManySeries
	}
	// Add refreshes the expiry of a known metric.
	c.series.Add(name, struct{}{})
	c.mu.Unlock()

	c.mon.Record(name, time.Duration(ms*float64(time.Millisecond)), failed)
	return name, nil
}
