// Package tool implements the tool calling subsystem: the Tool contract, a
// FunctionTool adapter for plain Go functions with schema validated arguments,
// and the Registry the agent loop resolves model requested invocations against.
package tool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/kbagent/core"
	"github.com/hupe1980/kbagent/internal/util"
)

// Error codes carried by ToolError.
const (
	CodeUnknownTool = "UNKNOWN_TOOL"
	CodeValidation  = "VALIDATION_ERROR"
	CodeExecution   = "EXECUTION_ERROR"
)

// Tool defines a named capability the model may invoke.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions (the model reads them)
//   - Define a JSON schema for parameters
//   - Return errors instead of panicking
//   - Be safe for concurrent use; sibling invocations run in parallel
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns the text shown to the model to decide when to call the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected argument object.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// SideEffecting is implemented by tools whose invocation mutates external
// state. The executor lets such invocations finish even if the request is
// cancelled mid-flight.
type SideEffecting interface {
	SideEffects() bool
}

// HasSideEffects reports whether t declares external side effects.
func HasSideEffects(t Tool) bool {
	se, ok := t.(SideEffecting)
	return ok && se.SideEffects()
}

// Descriptor is the model-facing description of a registered tool.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Describe builds the Descriptor for t.
func Describe(t Tool) Descriptor {
	return Descriptor{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()}
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool resolution or execution.
// Its Error() text is what ends up in the failure payload handed back to the model.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}

	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Is maps error codes onto the core sentinels.
func (e *ToolError) Is(target error) bool {
	switch e.Code {
	case CodeUnknownTool:
		return target == core.ErrUnknownTool
	case CodeValidation:
		return target == core.ErrValidation
	case CodeExecution:
		return target == core.ErrToolExecution
	}

	return false
}

// Unwrap exposes Details when it is an error.
func (e *ToolError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}

	return nil
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// AsToolError normalizes any error into a *ToolError. Errors already carrying a
// ToolError are returned as is, validation and unknown-tool errors get their
// dedicated codes and everything else is an execution error.
func AsToolError(name string, err error) *ToolError {
	if err == nil {
		return nil
	}

	var te *ToolError
	if errors.As(err, &te) {
		return te
	}

	var unknown *core.UnknownToolError
	if errors.As(err, &unknown) {
		return &ToolError{Tool: name, Message: err.Error(), Code: CodeUnknownTool, Details: err}
	}

	if errors.Is(err, core.ErrValidation) {
		return &ToolError{Tool: name, Message: fmt.Sprintf("parameter validation failed: %v", err), Code: CodeValidation, Details: err}
	}

	return &ToolError{Tool: name, Message: err.Error(), Code: CodeExecution, Details: err}
}
