package models

import "time"

const (
	SessionActive    = "active"
	SessionCompleted = "completed"
)

// Session is the persisted summary row of one trainee run through a procedure.
type Session struct {
	ID                string
	UserID            string
	ProcedureID       string
	ProcedureName     string
	Category          string
	Status            string
	CurrentStep       int
	TechnicalSkill    int
	DecisionMaking    int
	TimeManagement    int
	TissueHandling    int
	SafetyScore       int
	OverallScore      float64
	Grade             string
	DecisionCount     int
	CorrectCount      int
	ComplicationCount int
	StartedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// DecisionRecord is one persisted entry of the session trail. OptionIndex is -1 for
// steps completed without a decision point.
type DecisionRecord struct {
	ID          int
	SessionID   string
	Sequence    int
	StepIndex   int
	OptionIndex int
	TimeSpentMS int64
	IsCorrect   bool
	NextStep    int
	ImpactJSON  string
	AppliedJSON string
	CreatedAt   time.Time
}

type Complication struct {
	ID                   int
	SessionID            string
	Sequence             int
	StepIndex            int
	Type                 string
	Description          string
	InterventionRequired bool
	RecoverySeconds      int
	CreatedAt            time.Time
}
