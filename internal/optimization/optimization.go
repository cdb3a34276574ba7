// Package optimization summarises performance optimization suggestions for
// the dashboard. All functions are pure and never fail: malformed input
// degrades to zero or empty results.
package optimization

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"

	"github.com/aihub/agentdesk/internal/domain"
)

// Wildcard matches every value in a Filters field. An empty field does too.
const Wildcard = "all"

var rangePattern = regexp.MustCompile(`(\d+)-(\d+)%`)

var impactWeight = map[domain.Impact]int{
	domain.ImpactHigh:   3,
	domain.ImpactMedium: 2,
	domain.ImpactLow:    1,
}

// CategoryBreakdown is the per-category summary shown on the dashboard.
type CategoryBreakdown struct {
	Category    domain.Category `json:"category"`
	Count       int             `json:"count"`
	ImpactScore int             `json:"impactScore"`
}

// ImpactCounts counts suggestions per impact level.
type ImpactCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// DifficultyCounts counts suggestions per difficulty level.
type DifficultyCounts struct {
	Easy   int `json:"easy"`
	Medium int `json:"medium"`
	Hard   int `json:"hard"`
}

// Analysis is the combined summary of a suggestion list.
type Analysis struct {
	Total                 int                   `json:"total"`
	ByImpact              ImpactCounts          `json:"byImpact"`
	ByDifficulty          DifficultyCounts      `json:"byDifficulty"`
	PriorityOptimizations []domain.Optimization `json:"priorityOptimizations"`
	EstimatedImprovement  string                `json:"estimatedImprovement"`
	CategoryBreakdown     []CategoryBreakdown   `json:"categoryBreakdown"`
}

// Filters selects suggestions by category, impact and difficulty. Each field
// is either Wildcard, empty, or an exact value.
type Filters struct {
	Category   string `json:"category"`
	Impact     string `json:"impact"`
	Difficulty string `json:"difficulty"`
}

// CalculateEstimatedImprovement averages the midpoints of "N-M%" ranges found
// in each suggestion's EstimatedImprovement. Suggestions without a range
// count as 0. The result is a rounded percentage such as "15%".
func CalculateEstimatedImprovement(opts []domain.Optimization) string {
	if len(opts) == 0 {
		return "0%"
	}
	var total float64
	for _, o := range opts {
		m := rangePattern.FindStringSubmatch(o.EstimatedImprovement)
		if m == nil {
			continue
		}
		lo, err1 := strconv.ParseFloat(m[1], 64)
		hi, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		total += (lo + hi) / 2
	}
	avg := math.Round(total / float64(len(opts)))
	return fmt.Sprintf("%d%%", int(avg))
}

// CalculateCategoryBreakdown returns one entry per category in
// domain.Categories order, whatever the input.
func CalculateCategoryBreakdown(opts []domain.Optimization) []CategoryBreakdown {
	out := make([]CategoryBreakdown, len(domain.Categories))
	idx := make(map[domain.Category]int, len(domain.Categories))
	for i, c := range domain.Categories {
		out[i] = CategoryBreakdown{Category: c}
		idx[c] = i
	}
	for _, o := range opts {
		i, ok := idx[o.Category]
		if !ok {
			continue
		}
		out[i].Count++
		out[i].ImpactScore += impactWeight[o.Impact]
	}
	return out
}

// PerformOptimizationAnalysis combines counts, priority suggestions (high
// impact and easy), the estimated improvement and the category breakdown.
func PerformOptimizationAnalysis(opts []domain.Optimization) Analysis {
	a := Analysis{
		Total:                 len(opts),
		PriorityOptimizations: []domain.Optimization{},
		EstimatedImprovement:  CalculateEstimatedImprovement(opts),
		CategoryBreakdown:     CalculateCategoryBreakdown(opts),
	}
	for _, o := range opts {
		switch o.Impact {
		case domain.ImpactHigh:
			a.ByImpact.High++
		case domain.ImpactMedium:
			a.ByImpact.Medium++
		case domain.ImpactLow:
			a.ByImpact.Low++
		}
		switch o.Difficulty {
		case domain.DifficultyEasy:
			a.ByDifficulty.Easy++
		case domain.DifficultyMedium:
			a.ByDifficulty.Medium++
		case domain.DifficultyHard:
			a.ByDifficulty.Hard++
		}
		if o.Impact == domain.ImpactHigh && o.Difficulty == domain.DifficultyEasy {
			a.PriorityOptimizations = append(a.PriorityOptimizations, o)
		}
	}
	return a
}

// FilterOptimizations keeps suggestions matching every non-wildcard filter,
// preserving input order.
func FilterOptimizations(opts []domain.Optimization, f Filters) []domain.Optimization {
	if isWildcard(f.Category) && isWildcard(f.Impact) && isWildcard(f.Difficulty) {
		return slices.Clone(opts)
	}
	out := make([]domain.Optimization, 0, len(opts))
	for _, o := range opts {
		if matches(f.Category, string(o.Category)) &&
			matches(f.Impact, string(o.Impact)) &&
			matches(f.Difficulty, string(o.Difficulty)) {
			out = append(out, o)
		}
	}
	return out
}

func isWildcard(filter string) bool {
	return filter == "" || filter == Wildcard
}

func matches(filter, value string) bool {
	return isWildcard(filter) || filter == value
}
