package dashboard

import "gonum.org/v1/gonum/stat"

type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendDeclining        Trend = "declining"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

const (
	// MinTrendPoints is the fewest completed sessions a trend is reported for.
	MinTrendPoints = 3
	// TrendThreshold is the slope, in overall-score points per session, that counts as movement.
	TrendThreshold = 1.0
)

// DetectTrend fits a least-squares line through scores taken in session order and
// classifies its slope.
func DetectTrend(scores []float64) (Trend, float64) {
	if len(scores) < MinTrendPoints {
		return TrendInsufficientData, 0
	}

	xs := make([]float64, len(scores))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, scores, nil, false)

	switch {
	case slope >= TrendThreshold:
		return TrendImproving, slope
	case slope <= -TrendThreshold:
		return TrendDeclining, slope
	default:
		return TrendStable, slope
	}
}
