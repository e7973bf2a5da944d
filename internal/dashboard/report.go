package dashboard

import (
	"fmt"
	"sort"
	"strings"
)

// FormatReport renders stats as a plain-text progress report.
func FormatReport(s *UserStats) string {
	var b strings.Builder

	fmt.Fprintf(&b, `
Progress Report: %s
===================

Sessions: %d (%d completed, %d in progress)

Overall Score:
- Average: %.2f
- Median: %.2f
- Best: %.2f
- Std Dev: %.2f
- Trend: %s (%+.2f per session)

Metric Averages:
- Technical Skill: %.2f
- Decision Making: %.2f
- Time Management: %.2f
- Tissue Handling: %.2f
- Safety: %.2f

Decisions: %d (%d correct, %.1f%%)
Complications: %d
`,
		s.UserID,
		s.TotalSessions, s.CompletedSessions, s.ActiveSessions,
		s.AverageScore,
		s.MedianScore,
		s.BestScore,
		s.ScoreStdDev,
		s.Trend, s.TrendSlope,
		s.MetricAverages.TechnicalSkill,
		s.MetricAverages.DecisionMaking,
		s.MetricAverages.TimeManagement,
		s.MetricAverages.TissueHandling,
		s.MetricAverages.SafetyScore,
		s.TotalDecisions, s.CorrectDecisions, s.Accuracy,
		s.TotalComplications,
	)

	if len(s.GradeDistribution) > 0 {
		b.WriteString("\nGrades:\n")
		grades := make([]string, 0, len(s.GradeDistribution))
		for g := range s.GradeDistribution {
			grades = append(grades, g)
		}
		sort.Strings(grades)
		for _, g := range grades {
			fmt.Fprintf(&b, "- %s: %d\n", g, s.GradeDistribution[g])
		}
	}

	return b.String()
}
