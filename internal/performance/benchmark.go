package performance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aihub/agentdesk/internal/domain"
)

// ErrBenchmarkNotFound is returned when looking up an unknown benchmark run.
var ErrBenchmarkNotFound = errors.New("benchmark not found")

// BenchmarkOptions configures a benchmark run.
type BenchmarkOptions struct {
	Name        string
	Iterations  int
	Concurrency int
	// Budget is the p95 target in milliseconds used for scoring.
	Budget float64
}

// Run executes fn Iterations times with at most Concurrency calls in
// flight. Errors returned by fn are counted, not propagated. Cancelling ctx
// stops scheduling new iterations; the partial result is returned with the
// context error.
func Run(ctx context.Context, opts BenchmarkOptions, fn func(ctx context.Context) error) (domain.BenchmarkResult, error) {
	if opts.Iterations <= 0 {
		return domain.BenchmarkResult{}, errors.New("benchmark: iterations must be positive")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	durations := make([]float64, opts.Iterations)
	failed := make([]bool, opts.Iterations)
	ran := make([]bool, opts.Iterations)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	started := time.Now()
	for i := 0; i < opts.Iterations; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			t0 := time.Now()
			err := fn(gctx)
			durations[i] = float64(time.Since(t0)) / float64(time.Millisecond)
			failed[i] = err != nil
			ran[i] = true
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(started)

	var samples []float64
	errCount := 0
	for i := range ran {
		if !ran[i] {
			continue
		}
		samples = append(samples, durations[i])
		if failed[i] {
			errCount++
		}
	}

	stats := ComputeStats(samples, errCount)
	res := domain.BenchmarkResult{
		ID:          uuid.NewString(),
		Name:        opts.Name,
		Iterations:  opts.Iterations,
		Concurrency: opts.Concurrency,
		Stats:       stats,
		Elapsed:     elapsed,
		StartedAt:   started.UTC(),
	}
	if elapsed > 0 {
		res.Throughput = math.Round(float64(stats.Count)/elapsed.Seconds()*100) / 100
	}
	res.Score = Score(stats, opts.Budget)
	res.Grade = Grade(res.Score)

	return res, ctx.Err()
}

// Comparison is the outcome of an A/B comparison of two benchmark runs.
type Comparison struct {
	A             string  `json:"a"`
	B             string  `json:"b"`
	MeanChangePct float64 `json:"meanChangePct"`
	P95ChangePct  float64 `json:"p95ChangePct"`
	// Winner is "a", "b" or "tie".
	Winner string `json:"winner"`
}

// tieTolerancePct is the mean difference below which runs are a tie.
const tieTolerancePct = 5.0

// Compare reports how b differs from a. Negative changes mean b is faster.
func Compare(a, b domain.BenchmarkResult) Comparison {
	c := Comparison{
		A:             a.Name,
		B:             b.Name,
		MeanChangePct: pctChange(a.Stats.Mean, b.Stats.Mean),
		P95ChangePct:  pctChange(a.Stats.P95, b.Stats.P95),
		Winner:        "tie",
	}
	switch {
	case c.MeanChangePct <= -tieTolerancePct:
		c.Winner = "b"
	case c.MeanChangePct >= tieTolerancePct:
		c.Winner = "a"
	}
	return c
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return math.Round((to-from)/from*1000) / 10
}

// History keeps the most recent benchmark results, newest first.
type History struct {
	mu      sync.Mutex
	limit   int
	results []domain.BenchmarkResult
}

// NewHistory creates a history holding at most limit results.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 50
	}
	return &History{limit: limit}
}

// Add stores a result.
func (h *History) Add(r domain.BenchmarkResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append([]domain.BenchmarkResult{r}, h.results...)
	if len(h.results) > h.limit {
		h.results = h.results[:h.limit]
	}
}

// List returns the stored results, newest first.
func (h *History) List() []domain.BenchmarkResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.BenchmarkResult, len(h.results))
	copy(out, h.results)
	return out
}

// Get finds a result by id.
func (h *History) Get(id string) (domain.BenchmarkResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.results {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.BenchmarkResult{}, fmt.Errorf("%w: %s", ErrBenchmarkNotFound, id)
}
