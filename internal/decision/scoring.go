package decision

import (
	"math"
	"time"

	"github.com/vetlab/backend/internal/procedure"
)

// Weights of the overall score in percent. They sum to 100.
const (
	weightDecisionMaking = 30
	weightTechnicalSkill = 25
	weightTimeManagement = 20
	weightTissueHandling = 15
	weightSafetyScore    = 10
)

// ScoringRules selects the time-management formula.
type ScoringRules struct {
	// StrictTimeManagement makes slow steps cost points instead of only earning fewer.
	StrictTimeManagement bool
}

// NewMetrics returns metrics with every score set to baseline (clamped).
func NewMetrics(baseline int) Metrics {
	b := clamp(baseline)
	return Metrics{
		TechnicalSkill: b,
		DecisionMaking: b,
		TimeManagement: b,
		TissueHandling: b,
		SafetyScore:    b,
	}
}

// Apply adds d to m and saturates each metric at the floor and ceiling.
func (m Metrics) Apply(d Delta) Metrics {
	return Metrics{
		TechnicalSkill: clamp(m.TechnicalSkill + d.TechnicalSkill),
		DecisionMaking: clamp(m.DecisionMaking + d.DecisionMaking),
		TimeManagement: clamp(m.TimeManagement + d.TimeManagement),
		TissueHandling: clamp(m.TissueHandling + d.TissueHandling),
		SafetyScore:    clamp(m.SafetyScore + d.SafetyScore),
	}
}

// Overall is the weighted sum of the five metrics, in [0,100].
func (m Metrics) Overall() float64 {
	sum := m.DecisionMaking*weightDecisionMaking +
		m.TechnicalSkill*weightTechnicalSkill +
		m.TimeManagement*weightTimeManagement +
		m.TissueHandling*weightTissueHandling +
		m.SafetyScore*weightSafetyScore
	return float64(sum) / 100
}

func (m Metrics) Grade() Grade {
	return GradeFor(m.Overall())
}

// GradeFor maps an overall score to its letter grade.
func GradeFor(overall float64) Grade {
	switch {
	case overall >= 90:
		return GradeA
	case overall >= 80:
		return GradeB
	case overall >= 70:
		return GradeC
	case overall >= 60:
		return GradeD
	default:
		return GradeF
	}
}

// ScoreDecision computes the delta the aggregator applies for choosing opt at step.
func (r ScoringRules) ScoreDecision(step procedure.Step, opt procedure.Option, timeSpent time.Duration) Delta {
	critical := opt.IsCritical()

	var d Delta
	d.TimeManagement = r.timeDelta(step.ExpectedDuration, timeSpent)

	switch {
	case opt.IsCorrect:
		d.DecisionMaking = 20
	case critical:
		d.DecisionMaking = -10
	default:
		d.DecisionMaking = -5
	}

	switch {
	case opt.TechniqueScore != nil:
		d.TechnicalSkill = *opt.TechniqueScore
	case opt.IsCorrect:
		d.TechnicalSkill = 15
	default:
		d.TechnicalSkill = 5
	}

	switch {
	case opt.SafetyScore != nil:
		d.SafetyScore = *opt.SafetyScore
	case opt.IsCorrect:
		d.SafetyScore = 15
	case critical:
		d.SafetyScore = -20
	default:
		d.SafetyScore = -5
	}

	d.TissueHandling = roundHalfUp(float64(d.TechnicalSkill+d.SafetyScore) / 2)
	return d
}

// ScoreLinear computes the delta for completing a step that has no decision point:
// the timing component plus the fixed linear branch impact.
func (r ScoringRules) ScoreLinear(step procedure.Step, impact Delta, timeSpent time.Duration) Delta {
	d := impact
	d.TimeManagement += r.timeDelta(step.ExpectedDuration, timeSpent)
	return d
}

func (r ScoringRules) timeDelta(expectedSeconds int, spent time.Duration) int {
	ratio := 0.0
	if expectedSeconds > 0 {
		ratio = spent.Seconds() / float64(expectedSeconds)
	}

	if r.StrictTimeManagement {
		switch {
		case ratio <= 1.0:
			return 20
		case ratio <= 1.5:
			return 10
		case ratio <= 2.0:
			return 0
		default:
			return -10
		}
	}

	switch {
	case ratio <= 1.0:
		return 20
	case ratio <= 1.5:
		return 15
	case ratio <= 2.0:
		return 10
	default:
		return 5
	}
}

func clamp(v int) int {
	if v < MetricFloor {
		return MetricFloor
	}
	if v > MetricCeiling {
		return MetricCeiling
	}
	return v
}

// roundHalfUp rounds .5 towards positive infinity, so -2.5 becomes -2.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
