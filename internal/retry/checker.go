package retry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/aihub/agentdesk/internal/logging"
)

// State is the reachability of the checked endpoint.
type State string

const (
	StateChecking State = "checking"
	StateOnline   State = "online"
	StateOffline  State = "offline"
)

// Status is the latest probe outcome.
type Status struct {
	URL                 string    `json:"url"`
	State               State     `json:"state"`
	LastChecked         time.Time `json:"lastChecked"`
	LatencyMS           int64     `json:"latencyMs"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastError           string    `json:"lastError,omitempty"`
}

// Checker periodically probes a URL. After a failure the next probe is
// delayed by exponential backoff; a success restores the normal interval.
type Checker struct {
	url      string
	interval time.Duration
	client   *http.Client
	log      *logging.Logger

	mu       sync.RWMutex
	status   Status
	onChange func(Status)
	failBO   *backoff.ExponentialBackOff
}

// NewChecker creates a checker for url. Probes use the given client, or a
// client with a ten second timeout when nil.
func NewChecker(url string, interval time.Duration, client *http.Client, log *logging.Logger) *Checker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = interval
	bo.MaxInterval = 10 * interval
	bo.MaxElapsedTime = 0
	bo.Reset()

	return &Checker{
		url:      url,
		interval: interval,
		client:   client,
		log:      log.Sub("checker"),
		status:   Status{URL: url, State: StateChecking},
		failBO:   bo,
	}
}

// OnChange registers a callback fired when the state changes.
func (c *Checker) OnChange(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Status returns the latest probe outcome.
func (c *Checker) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Check probes once. Any HTTP response below 500 counts as online.
func (c *Checker) Check(ctx context.Context) Status {
	start := time.Now()
	err := c.probe(ctx)
	latency := time.Since(start)

	c.mu.Lock()
	prev := c.status.State
	c.status.LastChecked = time.Now().UTC()
	c.status.LatencyMS = latency.Milliseconds()
	if err != nil {
		c.status.State = StateOffline
		c.status.ConsecutiveFailures++
		c.status.LastError = err.Error()
	} else {
		c.status.State = StateOnline
		c.status.ConsecutiveFailures = 0
		c.status.LastError = ""
	}
	st := c.status
	cb := c.onChange
	c.mu.Unlock()

	if st.State != prev {
		if err != nil {
			c.log.Warn().Err(err).Str("url", c.url).Msg("upstream offline")
		} else {
			c.log.Info().Str("url", c.url).Int64("latencyMs", st.LatencyMS).Msg("upstream online")
		}
		if cb != nil {
			cb(st)
		}
	}
	return st
}

func (c *Checker) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// Run probes until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	for {
		st := c.Check(ctx)
		wait := c.nextDelay(st)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Checker) nextDelay(st Status) time.Duration {
	if st.State == StateOnline {
		c.failBO.Reset()
		return c.interval
	}
	return c.failBO.NextBackOff()
}
