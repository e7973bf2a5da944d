package decision

import (
	"strings"

	"github.com/vetlab/backend/internal/procedure"
)

// Branch impacts. Correct choices earn small gains; wrong ones cost more than they would have earned.
var (
	correctImpact = Delta{TechnicalSkill: 5, DecisionMaking: 10, SafetyScore: 5}
	linearImpact  = Delta{TechnicalSkill: 2}
)

const (
	incorrectDecisionPenalty  = -15
	incorrectTechniquePenalty = -10
	incorrectSafetyPenalty    = -10
	criticalSafetyPenalty     = -30

	majorBleedingRecovery = 600
	tissueDamageRecovery  = 180
)

// emergencyMarkers are matched against step titles when no step carries IsEmergency.
var emergencyMarkers = []string{"emergency", "complication", "اورژانس", "عارضه"}

// Tree is the immutable branch graph derived from one procedure. It is safe to share
// between sessions because nothing mutates it after BuildTree returns.
type Tree struct {
	Procedure *procedure.Procedure
	Nodes     []Node
}

type Node struct {
	Step     procedure.Step
	Branches []Branch
}

// Branch is one edge out of a node. Linear branches have DecisionPointIndex and OptionIndex
// set to LinearOption.
type Branch struct {
	DecisionPointIndex int            `json:"decision_point_index"`
	OptionIndex        int            `json:"option_index"`
	Linear             bool           `json:"linear"`
	NextStep           int            `json:"next_step"`
	Complications      []Complication `json:"complications,omitempty"`
	Impact             Delta          `json:"impact"`
}

// BuildTree derives the decision tree of p. It is deterministic and fails only for
// procedures that would leave a node without branches.
func BuildTree(p *procedure.Procedure) (*Tree, error) {
	if p == nil {
		return nil, &ProcedureError{StepIndex: -1, Reason: "procedure is nil"}
	}
	if len(p.Steps) == 0 {
		return nil, &ProcedureError{ProcedureID: p.ID, StepIndex: -1, Reason: "procedure has no steps"}
	}

	emergency := findEmergencyStep(p.Steps)

	tree := &Tree{
		Procedure: p,
		Nodes:     make([]Node, len(p.Steps)),
	}

	for i, step := range p.Steps {
		step.Index = i
		node := Node{Step: step}

		if step.Decision == nil {
			node.Branches = []Branch{{
				DecisionPointIndex: LinearOption,
				OptionIndex:        LinearOption,
				Linear:             true,
				NextStep:           i + 1,
				Impact:             linearImpact,
			}}
			tree.Nodes[i] = node
			continue
		}

		if len(step.Decision.Options) == 0 {
			return nil, &ProcedureError{ProcedureID: p.ID, StepIndex: i, Reason: "decision point has no options"}
		}

		node.Branches = make([]Branch, 0, len(step.Decision.Options))
		for j, opt := range step.Decision.Options {
			node.Branches = append(node.Branches, buildBranch(i, j, opt, emergency))
		}
		tree.Nodes[i] = node
	}

	return tree, nil
}

func buildBranch(stepIndex, optionIndex int, opt procedure.Option, emergency int) Branch {
	branch := Branch{
		DecisionPointIndex: 0,
		OptionIndex:        optionIndex,
	}

	if opt.IsCorrect {
		branch.NextStep = stepIndex + 1
		branch.Impact = correctImpact
		return branch
	}

	branch.Impact = Delta{
		TechnicalSkill: incorrectTechniquePenalty,
		DecisionMaking: incorrectDecisionPenalty,
		SafetyScore:    incorrectSafetyPenalty,
	}

	if opt.IsCritical() {
		branch.Impact.SafetyScore = criticalSafetyPenalty
		branch.Complications = []Complication{{
			Type:                 ComplicationMajorBleeding,
			Description:          "Major haemorrhage following a critical error; immediate haemostasis required",
			InterventionRequired: true,
			RecoverySeconds:      majorBleedingRecovery,
			StepIndex:            stepIndex,
		}}
		// Without an emergency step the trainee stays where they are.
		branch.NextStep = stepIndex
		if emergency >= 0 {
			branch.NextStep = emergency
		}
		return branch
	}

	branch.NextStep = stepIndex + 1
	branch.Complications = []Complication{{
		Type:                 ComplicationTissueDamage,
		Description:          "Avoidable tissue trauma; monitor the site and adjust technique",
		InterventionRequired: false,
		RecoverySeconds:      tissueDamageRecovery,
		StepIndex:            stepIndex,
	}}
	return branch
}

// findEmergencyStep returns the first step flagged as an emergency, falling back to the
// first step whose title carries an emergency marker. -1 when there is none.
func findEmergencyStep(steps []procedure.Step) int {
	for i, step := range steps {
		if step.IsEmergency {
			return i
		}
	}
	for i, step := range steps {
		title := strings.ToLower(step.Title)
		for _, marker := range emergencyMarkers {
			if strings.Contains(title, marker) {
				return i
			}
		}
	}
	return -1
}

// Len reports the number of steps in the tree.
func (t *Tree) Len() int {
	return len(t.Nodes)
}

// Branch looks up the branch taken by choosing option at step. Linear steps accept LinearOption.
func (t *Tree) Branch(step, option int) (*Node, *Branch, bool) {
	if step < 0 || step >= len(t.Nodes) {
		return nil, nil, false
	}
	node := &t.Nodes[step]
	for i := range node.Branches {
		if node.Branches[i].OptionIndex == option {
			return node, &node.Branches[i], true
		}
	}
	return node, nil, false
}
