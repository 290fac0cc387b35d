package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/kbagent/logging"
)

// ToolContext is the constrained surface handed to a tool executor for one
// invocation. It carries the invocation's context (cancellation, deadline),
// its correlation identifiers and a logger pre-populated with them.
type ToolContext struct {
	ctx            context.Context
	runID          string
	step           int
	functionCallID string
	toolName       string

	*loggerAdapter
}

// NewToolContext binds a tool invocation to its run, step and call id.
func NewToolContext(ctx context.Context, runID string, step int, fc FunctionCall, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}

	return &ToolContext{
		ctx:            ctx,
		runID:          runID,
		step:           step,
		functionCallID: fc.ID,
		toolName:       fc.Name,
		loggerAdapter:  newLoggerAdapter(logger),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// RunID returns the run the invocation belongs to.
func (tc *ToolContext) RunID() string { return tc.runID }

// Step returns the 1-based step index of the invocation.
func (tc *ToolContext) Step() int { return tc.step }

// FunctionCallID returns the correlation id of the invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// ToolName returns the name the model used to request this invocation.
func (tc *ToolContext) ToolName() string { return tc.toolName }

// Validate performs a structural sanity check of the context.
func (tc *ToolContext) Validate() error {
	if tc.functionCallID == "" || tc.toolName == "" {
		return fmt.Errorf("invalid ToolContext: missing call id or tool name")
	}

	return nil
}
