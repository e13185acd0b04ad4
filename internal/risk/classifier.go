// Package risk values margin accounts and projects their risk indicator
// across hypothetical actions.
package risk

import (
	"math"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// Thresholds are the risk indicator levels separating the bands.
type Thresholds struct {
	Warning     float64
	Critical    float64
	Liquidation float64
}

// DefaultThresholds match the protocol's published warning, critical and
// liquidation levels.
var DefaultThresholds = Thresholds{Warning: 0.8, Critical: 0.9, Liquidation: 1.0}

// Classify maps an indicator to its band. NaN and negative values are low.
func (t Thresholds) Classify(indicator float64) domain.RiskLevel {
	switch {
	case math.IsNaN(indicator):
		return domain.RiskLow
	case indicator >= t.Critical:
		return domain.RiskHigh
	case indicator >= t.Warning:
		return domain.RiskModerate
	default:
		return domain.RiskLow
	}
}

// ClassifyOptional treats a missing indicator as low.
func (t Thresholds) ClassifyOptional(indicator *float64) domain.RiskLevel {
	if indicator == nil {
		return domain.RiskLow
	}
	return t.Classify(*indicator)
}
