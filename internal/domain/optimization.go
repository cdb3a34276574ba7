package domain

// Category groups optimization suggestions by the layer they touch.
type Category string

const (
	CategoryFrontend Category = "frontend"
	CategoryBackend  Category = "backend"
	CategoryNetwork  Category = "network"
	CategoryCode     Category = "code"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryFrontend, CategoryBackend, CategoryNetwork, CategoryCode}

// Impact is the expected benefit of an optimization.
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// Difficulty is the expected effort of an optimization.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Optimization is a recommendation shown on the performance dashboard.
type Optimization struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	Description          string     `json:"description,omitempty"`
	Category             Category   `json:"category"`
	Impact               Impact     `json:"impact"`
	Difficulty           Difficulty `json:"difficulty"`
	EstimatedImprovement string     `json:"estimatedImprovement,omitempty"`
	Implementation       []string   `json:"implementation,omitempty"`
}
