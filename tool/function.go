package tool

import (
	"fmt"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"

	"github.com/hupe1980/kbagent/core"
	"github.com/hupe1980/kbagent/internal/util"
)

// FunctionOptions configures a FunctionTool.
type FunctionOptions struct {
	// SideEffects marks the tool as mutating external state (see SideEffecting).
	SideEffects bool
}

// FunctionTool exposes a Go function as a Tool. Arguments are checked against
// the declared schema before fn runs. Failures surface as *ToolError with
// CodeValidation for rejected arguments and CodeExecution for errors returned
// by fn; a *ToolError returned by fn keeps its own code. Safe for concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(toolCtx *core.ToolContext, args map[string]any) (any, error)
	opts        FunctionOptions

	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	lookup := NewFunctionTool(
//	  "getInformation",
//	  "get information from knowledge base to answer questions.",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "question": map[string]any{"type": "string", "description": "the users question"},
//	    },
//	    "required": []string{"question"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return kb.Retrieve(tc.Context(), args["question"].(string))
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...func(o *FunctionOptions),
) *FunctionTool {
	opts := FunctionOptions{}
	for _, opt := range optFns {
		opt(&opts)
	}

	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
		opts:        opts,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using reflection.
//
// Example:
//
//	type addArgs struct {
//	  Content string `json:"content" description:"the content or resource to add to the knowledge base"`
//	}
//
//	add := NewFunctionToolFromStruct("addResource", "add a resource ...", addArgs{}, fn)
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...func(o *FunctionOptions),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn, optFns...)
}

// WithSideEffects marks the tool as side effecting.
func WithSideEffects() func(o *FunctionOptions) {
	return func(o *FunctionOptions) { o.SideEffects = true }
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// SideEffects implements SideEffecting.
func (t *FunctionTool) SideEffects() bool { return t.opts.SideEffects }

func (t *FunctionTool) schema() (*jsonschema.Schema, error) {
	t.compileOnce.Do(func() {
		t.compiled, t.compileErr = util.CompileSchema(t.parameters)
	})

	return t.compiled, t.compileErr
}

// Call validates args and invokes the wrapped function.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "fc_id", toolCtx.FunctionCallID())

	compiled, err := t.schema()
	if err != nil {
		logger.Error("tool.schema.invalid", "tool", t.name, "error", err.Error())

		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution, Details: err}
	}

	if err := util.ValidateParameters(args, t.parameters, compiled); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		toolErr := AsToolError(t.name, err)
		logger.Error("tool.call.error", "tool", t.name, "code", toolErr.Code, "error", toolErr.Message)

		return nil, toolErr
	}

	logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
