package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hupe1980/kbagent/core"
	"github.com/hupe1980/kbagent/internal/metrics"
	"github.com/hupe1980/kbagent/logging"
	"github.com/hupe1980/kbagent/model"
	"github.com/hupe1980/kbagent/tool"
)

// Defaults applied by NewLoop.
const (
	DefaultMaxSteps         = 10
	DefaultMaxParallelTools = 4
	DefaultEventBufferSize  = 16

	DefaultTruncationNotice = "[Response truncated: the step limit was reached before a final answer.]"
	DefaultErrorMessage     = "The assistant is temporarily unavailable. Please try again later."
)

// Options configures a Loop.
type Options struct {
	Instruction      Instruction
	MaxSteps         int           // Step ceiling per run; <= 0 means unlimited
	MaxParallelTools int           // Sibling invocations running at once; <= 0 means unbounded
	ToolTimeout      time.Duration // Per read-only invocation; 0 (default) disables
	EnableStreaming  bool          // Ask the model for partial text
	EventBufferSize  int
	TruncationNotice string // Appended to the narrative when the ceiling is hit
	ErrorMessage     string // Caller facing text of terminal error events
	Logger           logging.Logger
	Metrics          *metrics.Recorder
}

// Loop is the tool orchestration state machine. A Loop is immutable after
// construction and may serve many concurrent runs; every run owns its
// conversation, step limiter and trace.
type Loop struct {
	llm      model.Model
	registry *tool.Registry
	opts     Options
	executor *executor
}

// NewLoop creates a Loop around a model and a tool registry.
func NewLoop(llm model.Model, registry *tool.Registry, optFns ...func(o *Options)) *Loop {
	opts := Options{
		Instruction:      NewInstructionFromText(DefaultInstruction),
		MaxSteps:         DefaultMaxSteps,
		MaxParallelTools: DefaultMaxParallelTools,
		EnableStreaming:  true,
		EventBufferSize:  DefaultEventBufferSize,
		TruncationNotice: DefaultTruncationNotice,
		ErrorMessage:     DefaultErrorMessage,
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.EventBufferSize < 0 {
		opts.EventBufferSize = 0
	}

	if registry == nil {
		registry, _ = tool.NewRegistry()
	}

	return &Loop{
		llm:      llm,
		registry: registry,
		opts:     opts,
		executor: &executor{
			registry:    registry,
			maxParallel: opts.MaxParallelTools,
			timeout:     opts.ToolTimeout,
			logger:      opts.Logger,
			metrics:     opts.Metrics,
		},
	}
}

// Tools returns the catalog presented to the model.
func (l *Loop) Tools() []tool.Descriptor { return l.registry.DescribeAll() }

// Run starts processing conversation and returns immediately. The caller's
// slice is copied and never modified. Cancelling ctx stops the run at its
// next suspension point; no event is delivered after cancellation is observed.
func (l *Loop) Run(ctx context.Context, conversation []core.Content) *Run {
	r := &Run{
		id:     core.NewID(),
		events: make(chan core.Event, l.opts.EventBufferSize),
		done:   make(chan struct{}),
	}

	go l.run(ctx, r, core.CloneContents(conversation))

	return r
}

// runState is the mutable state owned by a single run goroutine.
type runState struct {
	run       *Run
	state     State
	conv      []core.Content
	limiter   *core.StepLimiter
	trace     []StepRecord
	narrative []string
	logger    logging.Logger
}

func (s *runState) result(text string, err error) Result {
	return Result{
		RunID:        s.run.id,
		State:        s.state,
		Steps:        s.limiter.Count(),
		Trace:        s.trace,
		Conversation: s.conv,
		Text:         text,
		Err:          err,
	}
}

// partialNarrative joins the assistant text produced so far.
func (s *runState) partialNarrative() string {
	return strings.Join(s.narrative, "\n\n")
}

func (l *Loop) run(ctx context.Context, r *Run, conv []core.Content) {
	start := time.Now()

	st := &runState{
		run:     r,
		state:   StateAwaitingModel,
		conv:    conv,
		limiter: core.NewStepLimiter(l.opts.MaxSteps),
		logger:  logging.With(l.opts.Logger, "run_id", r.id),
	}

	st.logger.Info("agent.run.start", "messages", len(conv), "max_steps", l.opts.MaxSteps)

	res := l.drive(ctx, st)

	outcome := outcomeOf(res)
	l.opts.Metrics.RunFinished(outcome, res.Steps)
	st.logger.Info("agent.run.completed",
		"state", res.State.String(),
		"outcome", outcome,
		"steps", res.Steps,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	r.result = res
	close(r.events)
	close(r.done)
}

func outcomeOf(res Result) string {
	switch {
	case res.State == StateDone:
		return metrics.OutcomeDone
	case errors.Is(res.Err, core.ErrBudgetExceeded):
		return metrics.OutcomeAborted
	case errors.Is(res.Err, context.Canceled), errors.Is(res.Err, context.DeadlineExceeded):
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomeError
	}
}

// drive runs steps until a terminal state is reached.
func (l *Loop) drive(ctx context.Context, st *runState) Result {
	instruction, err := l.opts.Instruction.Resolve(ctx, instructionVars(l.registry.Names(), l.opts.MaxSteps))
	if err != nil {
		st.logger.Error("agent.instruction.failed", "error", err.Error())
		return l.fail(ctx, st, 0, err)
	}

	tools := l.toolDefinitions()

	for {
		if err := ctx.Err(); err != nil {
			return l.cancelled(st, err)
		}

		step, err := st.limiter.Increment()
		if err != nil {
			return l.abort(ctx, st, step, err)
		}

		rec, err := l.step(ctx, st, step, instruction, tools)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return l.cancelled(st, ctxErr)
			}

			return l.fail(ctx, st, step, err)
		}

		st.trace = append(st.trace, rec)

		if len(rec.Invocations) == 0 {
			st.state = StateDone
			text := rec.Output.Text()
			l.emit(ctx, st, core.NewFinishEvent(st.run.id, step, text))

			return st.result(text, nil)
		}

		if err := ctx.Err(); err != nil {
			return l.cancelled(st, err)
		}

		st.state = StateAwaitingModel
	}
}

// step performs one model call and, if requested, one round of tool execution.
func (l *Loop) step(ctx context.Context, st *runState, step int, instruction string, tools []model.ToolDefinition) (StepRecord, error) {
	start := time.Now()
	rec := StepRecord{Index: step}

	st.state = StateAwaitingModel
	st.logger.Debug("agent.step.start", "step", step, "remaining_steps", st.limiter.Remaining())

	if !l.emit(ctx, st, core.NewStepStartEvent(st.run.id, step)) {
		return rec, ctx.Err()
	}

	output, err := l.generate(ctx, st, step, model.Request{
		Instructions: instruction,
		Contents:     core.CloneContents(st.conv),
		Tools:        tools,
		Stream:       l.opts.EnableStreaming,
	})
	if err != nil {
		return rec, err
	}

	rec.Output = output
	rec.Invocations = output.FunctionCalls()

	if len(output.Parts) > 0 {
		st.conv = append(st.conv, output)
	}

	if text := output.Text(); text != "" {
		st.narrative = append(st.narrative, text)
	}

	if len(rec.Invocations) == 0 {
		rec.FinishReason = core.FinishStop
		rec.Duration = time.Since(start)
		l.emit(ctx, st, core.NewStepFinishEvent(st.run.id, step, rec.FinishReason))

		return rec, nil
	}

	st.state = StateExecutingTools

	for _, fc := range rec.Invocations {
		if !l.emit(ctx, st, core.NewToolCallEvent(st.run.id, step, fc)) {
			return rec, ctx.Err()
		}
	}

	rec.Results = l.executor.execute(ctx, st.run.id, step, rec.Invocations)

	// Results of invocations that outlived the caller are discarded.
	if err := ctx.Err(); err != nil {
		return rec, err
	}

	parts := make([]core.Part, len(rec.Results))
	for i, fr := range rec.Results {
		parts[i] = core.FunctionResponsePart{FunctionResponse: fr}
	}

	st.conv = append(st.conv, core.Content{Role: core.RoleTool, Parts: parts})

	for _, fr := range rec.Results {
		if !l.emit(ctx, st, core.NewToolResultEvent(st.run.id, step, fr)) {
			return rec, ctx.Err()
		}
	}

	rec.FinishReason = core.FinishToolCalls
	rec.Duration = time.Since(start)

	if !l.emit(ctx, st, core.NewStepFinishEvent(st.run.id, step, rec.FinishReason)) {
		return rec, ctx.Err()
	}

	return rec, nil
}

// generate calls the model, forwarding partial text as text-delta events, and
// returns the complete assistant turn with call ids filled in.
func (l *Loop) generate(ctx context.Context, st *runState, step int, req model.Request) (core.Content, error) {
	info := l.llm.Info()
	start := time.Now()

	var (
		final    *model.Response
		genErr   error
		streamed bool
	)

	respCh, errCh := l.llm.Generate(ctx, req)

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return core.Content{}, ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}

			if resp.Partial {
				if text := resp.Content.Text(); text != "" {
					streamed = true

					if !l.emit(ctx, st, core.NewTextDeltaEvent(st.run.id, step, text)) {
						return core.Content{}, ctx.Err()
					}
				}

				continue
			}

			final = &resp
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}

			if err != nil {
				genErr = err
			}
		}
	}

	dur := time.Since(start)

	if genErr == nil && final == nil {
		genErr = errors.New("model returned no final response")
	}

	l.opts.Metrics.ModelCall(info.Provider, genErr, dur)
	logging.LogModelCall(logging.With(st.logger, "step", step), info.Provider, info.Name, dur, genErr)

	if genErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return core.Content{}, ctxErr
		}

		return core.Content{}, &core.ModelUnavailableError{Provider: info.Provider, Model: info.Name, Err: genErr}
	}

	output := assignCallIDs(final.Content)

	if text := output.Text(); text != "" && !streamed {
		if !l.emit(ctx, st, core.NewTextDeltaEvent(st.run.id, step, text)) {
			return core.Content{}, ctx.Err()
		}
	}

	return output, nil
}

// abort ends a run whose step budget is exhausted.
func (l *Loop) abort(ctx context.Context, st *runState, step int, err error) Result {
	st.state = StateAborted
	notice := l.opts.TruncationNotice

	st.logger.Warn("agent.run.budget_exceeded", "steps", st.limiter.Count(), "max_steps", st.limiter.Max())
	l.emit(ctx, st, core.NewAbortEvent(st.run.id, step, notice))

	text := notice
	if partial := st.partialNarrative(); partial != "" {
		text = partial + "\n\n" + notice
	}

	return st.result(text, err)
}

// fail ends a run on an unrecoverable error. The caller only sees the
// generic error message.
func (l *Loop) fail(ctx context.Context, st *runState, step int, err error) Result {
	st.state = StateAborted

	st.logger.Error("agent.run.failed", "step", step, "error", err.Error())
	l.emit(ctx, st, core.NewErrorEvent(st.run.id, step, l.opts.ErrorMessage))

	return st.result(st.partialNarrative(), err)
}

func (l *Loop) cancelled(st *runState, err error) Result {
	st.state = StateAborted
	st.logger.Info("agent.run.cancelled", "steps", st.limiter.Count(), "error", err.Error())

	return st.result(st.partialNarrative(), err)
}

// emit delivers ev unless the run's context is done. It never sends once
// cancellation has been observed.
func (l *Loop) emit(ctx context.Context, st *runState, ev core.Event) bool {
	if ctx.Err() != nil {
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case st.run.events <- ev:
		return true
	}
}

func (l *Loop) toolDefinitions() []model.ToolDefinition {
	descriptors := l.registry.DescribeAll()
	if len(descriptors) == 0 {
		return nil
	}

	defs := make([]model.ToolDefinition, len(descriptors))
	for i, d := range descriptors {
		defs[i] = model.NewFunctionTool(d.Name, d.Description, d.Parameters)
	}

	return defs
}

// assignCallIDs gives every function call without an id a fresh one so the
// results can be correlated.
func assignCallIDs(c core.Content) core.Content {
	out := core.Content{Role: core.RoleAssistant, Parts: make([]core.Part, 0, len(c.Parts))}

	for _, p := range c.Parts {
		if fc, ok := p.(core.FunctionCallPart); ok && fc.FunctionCall.ID == "" {
			fc.FunctionCall.ID = core.NewID()
			p = fc
		}

		out.Parts = append(out.Parts, p)
	}

	return out
}
