// Package procedure holds the read-only definition of a surgical or clinical
// protocol and the machinery that loads it from disk.
package procedure

import (
	"fmt"
	"strings"
)

// Tier grades technical difficulty and criticality of a step.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Severity only matters for options that are not correct.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
)

type Procedure struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Category string   `json:"category" yaml:"category"`
	Metadata Metadata `json:"metadata" yaml:"metadata"`
	Steps    []Step   `json:"steps" yaml:"steps"`
	Sources  []string `json:"sources,omitempty" yaml:"sources,omitempty"`
}

type Metadata struct {
	Difficulty string `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Species    string `json:"species,omitempty" yaml:"species,omitempty"`
}

type Step struct {
	Index               int            `json:"index" yaml:"index"`
	Title               string         `json:"title" yaml:"title"`
	Description         string         `json:"description,omitempty" yaml:"description,omitempty"`
	ExpectedDuration    int            `json:"expected_duration" yaml:"expected_duration"`
	TechnicalDifficulty Tier           `json:"technical_difficulty,omitempty" yaml:"technical_difficulty,omitempty"`
	Criticality         Tier           `json:"criticality,omitempty" yaml:"criticality,omitempty"`
	IsEmergency         bool           `json:"is_emergency,omitempty" yaml:"is_emergency,omitempty"`
	Decision            *DecisionPoint `json:"decision,omitempty" yaml:"decision,omitempty"`
}

// DecisionPoint may mark more than one option correct; nothing enforces exclusivity.
type DecisionPoint struct {
	Question string   `json:"question" yaml:"question"`
	Options  []Option `json:"options" yaml:"options"`
}

type Option struct {
	Text        string   `json:"text" yaml:"text"`
	IsCorrect   bool     `json:"is_correct" yaml:"is_correct"`
	Severity    Severity `json:"severity,omitempty" yaml:"severity,omitempty"`
	Explanation string   `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Outcome     string   `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Rationale   string   `json:"rationale,omitempty" yaml:"rationale,omitempty"`

	// Explicit sub-scores override the defaults derived from correctness.
	TechniqueScore *int `json:"technique_score,omitempty" yaml:"technique_score,omitempty"`
	SafetyScore    *int `json:"safety_score,omitempty" yaml:"safety_score,omitempty"`
}

func (s Step) HasDecision() bool {
	return s.Decision != nil
}

func (o Option) IsCritical() bool {
	return o.Severity == SeverityCritical
}

// Validate reports structural problems that would leave a decision tree with dead ends.
func (p *Procedure) Validate() error {
	if p == nil {
		return fmt.Errorf("procedure is nil")
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("procedure id is required")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("procedure %s has no steps", p.ID)
	}
	for i, step := range p.Steps {
		if step.ExpectedDuration < 0 {
			return fmt.Errorf("procedure %s step %d: negative expected duration", p.ID, i)
		}
		if step.Decision != nil && len(step.Decision.Options) == 0 {
			return fmt.Errorf("procedure %s step %d: decision point has no options", p.ID, i)
		}
	}
	return nil
}

// normalize rewrites step indexes to their position in the step list.
func (p *Procedure) normalize() {
	for i := range p.Steps {
		p.Steps[i].Index = i
	}
}
