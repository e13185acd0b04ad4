package domain

// RiskLevel is the ordinal band a risk indicator falls into.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// RiskProjection compares an account's current risk indicator with the value
// it would have after a hypothetical action.
type RiskProjection struct {
	Current        float64   `json:"current"`
	Projected      float64   `json:"projected"`
	CurrentLevel   RiskLevel `json:"current_level"`
	ProjectedLevel RiskLevel `json:"projected_level"`
}
