package executor

import (
	"fmt"
	"strings"

	"aimodeler/internal/plan"
)

// ValidationError reports that a plan failed validation. Nothing in the
// scene was touched.
type ValidationError struct {
	Violations []plan.Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("plan validation failed: %s", strings.Join(parts, "; "))
}

// StepExecutionError reports that a specific step could not be applied.
// It is surfaced only after rollback has completed.
type StepExecutionError struct {
	Index int // 1-based step index
	Op    plan.Op
	Err   error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index, e.Op, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// PartialRollbackError reports that rollback itself could not fully
// undo the plan's effects. Residue names what was left behind so the
// caller can warn the user.
type PartialRollbackError struct {
	Step    *StepExecutionError
	Residue []string
}

func (e *PartialRollbackError) Error() string {
	return fmt.Sprintf("%v; rollback incomplete, residue: %s",
		e.Step, strings.Join(e.Residue, ", "))
}

func (e *PartialRollbackError) Unwrap() error { return e.Step }
