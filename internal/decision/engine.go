package decision

import (
	"time"

	"github.com/vetlab/backend/internal/procedure"
)

// EngineConfig tunes scoring and feedback for one engine.
type EngineConfig struct {
	Baseline      int
	Rules         ScoringRules
	Locale        string
	MaxReferences int
	Clock         func() time.Time
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Locale:        "fa",
		MaxReferences: DefaultMaxReferences,
		Clock:         time.Now,
	}
}

// Engine replays one trainee's choices against a tree. It is a synchronous state machine
// with no I/O; each session owns its own Engine and must not share it between goroutines
// without external locking.
type Engine struct {
	tree   *Tree
	config EngineConfig

	metrics       Metrics
	complications []Complication
	records       []DecisionRecord
	current       int
}

func NewEngine(tree *Tree, config EngineConfig) *Engine {
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Locale == "" {
		config.Locale = "fa"
	}
	return &Engine{
		tree:    tree,
		config:  config,
		metrics: NewMetrics(config.Baseline),
	}
}

// ProcessDecision scores choosing option at step. On error nothing in the engine changes.
func (e *Engine) ProcessDecision(step, option int, timeSpent time.Duration) (*Outcome, error) {
	if timeSpent < 0 {
		return nil, invalidContext(step, option, "negative time spent")
	}
	if step < 0 || step >= e.tree.Len() {
		return nil, invalidContext(step, option, "step out of range [0,%d)", e.tree.Len())
	}

	node := &e.tree.Nodes[step]
	if !node.Step.HasDecision() {
		return nil, invalidContext(step, option, "step has no decision point")
	}
	options := node.Step.Decision.Options
	if option < 0 || option >= len(options) {
		return nil, invalidContext(step, option, "option out of range [0,%d)", len(options))
	}

	_, branch, ok := e.tree.Branch(step, option)
	if !ok {
		return nil, invalidContext(step, option, "no branch for option")
	}

	opt := options[option]
	applied := e.config.Rules.ScoreDecision(node.Step, opt, timeSpent)
	feedback := GenerateFeedback(e.config.Locale, opt, e.tree.Procedure.Sources, e.config.MaxReferences)

	return e.commit(step, option, opt.IsCorrect, timeSpent, branch, applied, feedback), nil
}

// Advance completes a step that has no decision point by following its linear branch.
func (e *Engine) Advance(step int, timeSpent time.Duration) (*Outcome, error) {
	if timeSpent < 0 {
		return nil, invalidContext(step, LinearOption, "negative time spent")
	}
	if step < 0 || step >= e.tree.Len() {
		return nil, invalidContext(step, LinearOption, "step out of range [0,%d)", e.tree.Len())
	}

	node, branch, ok := e.tree.Branch(step, LinearOption)
	if !ok || !branch.Linear {
		return nil, invalidContext(step, LinearOption, "step requires a decision")
	}

	applied := e.config.Rules.ScoreLinear(node.Step, branch.Impact, timeSpent)
	feedback := linearFeedback(e.config.Locale, node.Step, e.tree.Procedure.Sources, e.config.MaxReferences)

	return e.commit(step, LinearOption, true, timeSpent, branch, applied, feedback), nil
}

func (e *Engine) commit(step, option int, correct bool, timeSpent time.Duration, branch *Branch, applied Delta, feedback Feedback) *Outcome {
	e.metrics = e.metrics.Apply(applied)

	generated := copyComplications(branch.Complications)
	e.complications = append(e.complications, generated...)

	e.records = append(e.records, DecisionRecord{
		Sequence:      len(e.records) + 1,
		StepIndex:     step,
		OptionIndex:   option,
		TimeSpent:     timeSpent,
		IsCorrect:     correct,
		NextStep:      branch.NextStep,
		Complications: copyComplications(generated),
		Impact:        branch.Impact,
		Applied:       applied,
		RecordedAt:    e.config.Clock(),
	})
	e.current = branch.NextStep

	return &Outcome{
		StepIndex:     step,
		OptionIndex:   option,
		IsCorrect:     correct,
		NextStep:      branch.NextStep,
		Complications: generated,
		Feedback:      feedback,
		Impact:        branch.Impact,
		Applied:       applied,
		Metrics:       e.metrics,
	}
}

func (e *Engine) Metrics() Metrics {
	return e.metrics
}

func (e *Engine) CurrentStep() int {
	return e.current
}

// Finished reports whether the trainee has moved past the last step.
func (e *Engine) Finished() bool {
	return e.current >= e.tree.Len()
}

func (e *Engine) Procedure() *procedure.Procedure {
	return e.tree.Procedure
}

func (e *Engine) Complications() []Complication {
	return copyComplications(e.complications)
}

func (e *Engine) Records() []DecisionRecord {
	out := make([]DecisionRecord, len(e.records))
	for i, r := range e.records {
		r.Complications = copyComplications(r.Complications)
		out[i] = r
	}
	return out
}

func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		ProcedureID:   e.tree.Procedure.ID,
		CurrentStep:   e.current,
		Finished:      e.Finished(),
		Metrics:       e.metrics,
		Overall:       e.metrics.Overall(),
		Grade:         e.metrics.Grade(),
		Complications: e.Complications(),
		Records:       e.Records(),
	}
}

func copyComplications(in []Complication) []Complication {
	if len(in) == 0 {
		return []Complication{}
	}
	out := make([]Complication, len(in))
	copy(out, in)
	return out
}
