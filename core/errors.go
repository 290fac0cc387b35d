package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is matching across the taxonomy.
var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrDuplicateTool    = errors.New("duplicate tool")
	ErrToolExecution    = errors.New("tool execution failed")
	ErrValidation       = errors.New("validation failed")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrBudgetExceeded   = errors.New("step budget exceeded")
)

// UnknownToolError is returned when an invocation names a tool the registry
// does not know. It becomes the invocation's result payload.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string { return fmt.Sprintf("unknown tool %q", e.Name) }

// Is matches ErrUnknownTool.
func (e *UnknownToolError) Is(target error) bool { return target == ErrUnknownTool }

// DuplicateToolError is returned when a tool name is registered twice.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// Is matches ErrDuplicateTool.
func (e *DuplicateToolError) Is(target error) bool { return target == ErrDuplicateTool }

// ModelUnavailableError wraps a provider failure. It aborts the run.
type ModelUnavailableError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model %s/%s unavailable: %v", e.Provider, e.Model, e.Err)
}

// Unwrap returns the provider error.
func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// Is matches ErrModelUnavailable.
func (e *ModelUnavailableError) Is(target error) bool { return target == ErrModelUnavailable }

// BudgetExceededError reports that the step ceiling was reached while the model
// still wanted to act.
type BudgetExceededError struct {
	MaxSteps int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("step budget of %d exhausted", e.MaxSteps)
}

// Is matches ErrBudgetExceeded.
func (e *BudgetExceededError) Is(target error) bool { return target == ErrBudgetExceeded }
