package performance

import (
	"math"

	"github.com/aihub/agentdesk/internal/domain"
)

// Score rates a metric from 0 to 100. A p95 within budget scores 100; beyond
// it the score falls in proportion to the overrun. Each percentage point of
// failed samples costs one point. budget <= 0 scores on errors only.
func Score(s domain.MetricStats, budget float64) float64 {
	if s.Count == 0 {
		return 100
	}
	score := 100.0
	if budget > 0 && s.P95 > budget {
		score = 100 * budget / s.P95
	}
	score -= s.ErrorRate() * 100
	score = math.Max(0, math.Min(100, score))
	return math.Round(score*10) / 10
}

// Grade maps a score to a letter.
func Grade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}
