package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/kbagent/core"
	"github.com/hupe1980/kbagent/internal/metrics"
	"github.com/hupe1980/kbagent/logging"
	"github.com/hupe1980/kbagent/tool"
)

// executor runs the invocations of one step concurrently and returns their
// results in request order. Every failure (unknown tool, invalid arguments,
// executor error, panic, timeout, skipped after cancellation) becomes an error FunctionResponse.
type executor struct {
	registry    *tool.Registry
	maxParallel int
	timeout     time.Duration
	logger      logging.Logger
	metrics     *metrics.Recorder
}

func (e *executor) execute(ctx context.Context, runID string, step int, calls []core.FunctionCall) []core.FunctionResponse {
	results := make([]core.FunctionResponse, len(calls))
	if len(calls) == 0 {
		return results
	}

	batchStart := time.Now()

	// Plain group: a failing invocation must not cancel its siblings.
	var g errgroup.Group
	if e.maxParallel > 0 {
		g.SetLimit(e.maxParallel)
	}

	for i, fc := range calls {
		g.Go(func() error {
			results[i] = e.invoke(ctx, runID, step, fc)
			return nil
		})
	}

	_ = g.Wait()

	e.logger.Debug("agent.tools.batch.complete",
		"run_id", runID,
		"step", step,
		"count", len(calls),
		"parallelism", e.maxParallel,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

func (e *executor) invoke(ctx context.Context, runID string, step int, fc core.FunctionCall) core.FunctionResponse {
	fr := core.FunctionResponse{ID: fc.ID, Name: fc.Name}
	start := time.Now()

	result, err := e.call(ctx, runID, step, fc)

	dur := time.Since(start)
	logging.LogToolCall(logging.With(e.logger, "run_id", runID, "step", step), fc.Name, fc.ID, dur, err)
	e.metrics.ToolCall(fc.Name, err != nil, dur)

	if err != nil {
		fr.Error = tool.AsToolError(fc.Name, err).Error()
		return fr
	}

	fr.Response = result

	return fr
}

func (e *executor) call(ctx context.Context, runID string, step int, fc core.FunctionCall) (result any, err error) {
	// Queued invocations never start once the caller has gone.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("invocation skipped: %w", err)
	}

	t, err := e.registry.Resolve(fc.Name)
	if err != nil {
		return nil, err
	}

	callCtx := ctx

	switch {
	case tool.HasSideEffects(t):
		// Started writes run to completion, unbounded by cancellation or timeout.
		callCtx = context.WithoutCancel(ctx)
	case e.timeout > 0:
		var cancel context.CancelFunc

		callCtx, cancel = context.WithTimeout(callCtx, e.timeout)
		defer cancel()
	}

	args, err := decodeArguments(fc.Arguments)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("agent.tool.panic", "tool", fc.Name, "fc_id", fc.ID, "recover", r, "stack", string(debug.Stack()))
			err = &tool.ToolError{Tool: fc.Name, Message: fmt.Sprintf("panic recovered: %v", r), Code: tool.CodeExecution}
		}
	}()

	return t.Call(core.NewToolContext(callCtx, runID, step, fc, e.logger), args)
}

// decodeArguments parses the model supplied JSON argument object.
func decodeArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, &tool.ValidationError{Value: raw, Message: fmt.Sprintf("arguments are not a valid JSON object: %v", err)}
	}

	if args == nil {
		args = map[string]any{}
	}

	return args, nil
}
