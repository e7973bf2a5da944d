package decision

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidContext is returned when a decision targets a step or option that does not exist.
	ErrInvalidContext = errors.New("invalid decision context")

	// ErrMalformedProcedure is returned when a procedure cannot produce a complete tree.
	ErrMalformedProcedure = errors.New("malformed procedure")
)

// ContextError describes a rejected decision. It matches ErrInvalidContext with errors.Is.
type ContextError struct {
	StepIndex   int
	OptionIndex int
	Reason      string
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("%v: step %d option %d: %s", ErrInvalidContext, e.StepIndex, e.OptionIndex, e.Reason)
}

func (e *ContextError) Unwrap() error {
	return ErrInvalidContext
}

// ProcedureError describes why a tree could not be built. It matches ErrMalformedProcedure.
type ProcedureError struct {
	ProcedureID string
	StepIndex   int
	Reason      string
}

func (e *ProcedureError) Error() string {
	if e.StepIndex < 0 {
		return fmt.Sprintf("%v %q: %s", ErrMalformedProcedure, e.ProcedureID, e.Reason)
	}
	return fmt.Sprintf("%v %q: step %d: %s", ErrMalformedProcedure, e.ProcedureID, e.StepIndex, e.Reason)
}

func (e *ProcedureError) Unwrap() error {
	return ErrMalformedProcedure
}

func invalidContext(step, option int, format string, args ...interface{}) error {
	return &ContextError{StepIndex: step, OptionIndex: option, Reason: fmt.Sprintf(format, args...)}
}
