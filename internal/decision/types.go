package decision

import "time"

const (
	MetricFloor   = 0
	MetricCeiling = 100
)

// Metrics are the five running scores of a session. Every value stays within
// [MetricFloor, MetricCeiling]; updates saturate instead of wrapping.
type Metrics struct {
	TechnicalSkill int `json:"technical_skill"`
	DecisionMaking int `json:"decision_making"`
	TimeManagement int `json:"time_management"`
	TissueHandling int `json:"tissue_handling"`
	SafetyScore    int `json:"safety_score"`
}

// Delta is a signed per-metric adjustment.
type Delta struct {
	TechnicalSkill int `json:"technical_skill"`
	DecisionMaking int `json:"decision_making"`
	TimeManagement int `json:"time_management"`
	TissueHandling int `json:"tissue_handling"`
	SafetyScore    int `json:"safety_score"`
}

// Grade is the letter mapping of the overall score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

const (
	ComplicationMajorBleeding = "major_bleeding"
	ComplicationTissueDamage  = "tissue_damage"
)

type Complication struct {
	Type                 string `json:"type"`
	Description          string `json:"description"`
	InterventionRequired bool   `json:"intervention_required"`
	RecoverySeconds      int    `json:"recovery_seconds"`
	StepIndex            int    `json:"step_index"`
}

// LinearOption is the option index recorded when a step without a decision point is completed.
const LinearOption = -1

// DecisionRecord is one entry of the append-only session trail.
type DecisionRecord struct {
	Sequence      int            `json:"sequence"`
	StepIndex     int            `json:"step_index"`
	OptionIndex   int            `json:"option_index"`
	TimeSpent     time.Duration  `json:"time_spent"`
	IsCorrect     bool           `json:"is_correct"`
	NextStep      int            `json:"next_step"`
	Complications []Complication `json:"complications,omitempty"`
	Impact        Delta          `json:"impact"`
	Applied       Delta          `json:"applied"`
	RecordedAt    time.Time      `json:"recorded_at"`
}

// Outcome is what a processed decision returns to the caller.
//
// Impact is the branch delta fixed when the tree was built; Applied is what the
// performance aggregator actually added to the running metrics for this decision.
type Outcome struct {
	StepIndex     int            `json:"step_index"`
	OptionIndex   int            `json:"option_index"`
	IsCorrect     bool           `json:"is_correct"`
	NextStep      int            `json:"next_step"`
	Complications []Complication `json:"complications"`
	Feedback      Feedback       `json:"feedback"`
	Impact        Delta          `json:"impact"`
	Applied       Delta          `json:"applied"`
	Metrics       Metrics        `json:"metrics"`
}

// Snapshot is a copy of the whole session state at one point in time.
type Snapshot struct {
	ProcedureID   string           `json:"procedure_id"`
	CurrentStep   int              `json:"current_step"`
	Finished      bool             `json:"finished"`
	Metrics       Metrics          `json:"metrics"`
	Overall       float64          `json:"overall"`
	Grade         Grade            `json:"grade"`
	Complications []Complication   `json:"complications"`
	Records       []DecisionRecord `json:"records"`
}
