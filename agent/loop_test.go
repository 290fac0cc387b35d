package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kbagent/core"
	"github.com/hupe1980/kbagent/knowledge"
	"github.com/hupe1980/kbagent/knowledge/vectordb"
	"github.com/hupe1980/kbagent/logging"
	"github.com/hupe1980/kbagent/model"
	"github.com/hupe1980/kbagent/tool"
	"github.com/hupe1980/kbagent/tool/builtin"
)

type fakeKB struct {
	mu        sync.Mutex
	ingested  []string
	fragments []core.Fragment
	err       error
}

func (f *fakeKB) Ingest(_ context.Context, text string) (core.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return core.Resource{}, f.err
	}

	f.ingested = append(f.ingested, text)

	return core.Resource{ID: "res-1", Content: text, Chunks: 1}, nil
}

func (f *fakeKB) Retrieve(context.Context, string) ([]core.Fragment, error) {
	return f.fragments, f.err
}

var emptyObject = map[string]any{"type": "object", "properties": map[string]any{}}

func newRegistry(t *testing.T, tools ...tool.Tool) *tool.Registry {
	t.Helper()

	reg, err := tool.NewRegistry(tools...)
	require.NoError(t, err)

	return reg
}

func userSays(text string) []core.Content {
	return []core.Content{core.NewTextContent(core.RoleUser, text)}
}

func eventTypes(events []core.Event) []core.EventType {
	out := make([]core.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}

	return out
}

func eventsOfType(events []core.Event, typ core.EventType) []core.Event {
	var out []core.Event

	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}

	return out
}

func collectWithTimeout(t *testing.T, run *Run) ([]core.Event, Result) {
	t.Helper()

	type collected struct {
		events []core.Event
		result Result
	}

	ch := make(chan collected, 1)

	go func() {
		events, res := run.Collect()
		ch <- collected{events, res}
	}()

	select {
	case c := <-ch:
		return c.events, c.result
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
		return nil, Result{}
	}
}

func TestLoop_NoToolCallsFinishesAfterOneStep(t *testing.T) {
	m := model.NewScriptedModel(model.Turn{Text: "Hello! How can I help?"})
	loop := NewLoop(m, newRegistry(t, builtin.NewIsHarmfulTool(nil)))

	conv := userSays("Hi")
	events, res := collectWithTimeout(t, loop.Run(context.Background(), conv))

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 1, res.Steps)
	assert.NoError(t, res.Err)
	assert.Equal(t, "Hello! How can I help?", res.Text)
	require.Len(t, res.Trace, 1)
	assert.Equal(t, core.FinishStop, res.Trace[0].FinishReason)

	assert.Equal(t, []core.EventType{
		core.EventStepStart, core.EventTextDelta, core.EventStepFinish, core.EventFinish,
	}, eventTypes(events))

	for _, ev := range events {
		assert.Equal(t, res.RunID, ev.RunID)
	}

	require.Len(t, res.Conversation, 2)
	assert.Equal(t, core.RoleAssistant, res.Conversation[1].Role)
	assert.Len(t, conv, 1, "caller conversation is not modified")
	assert.Equal(t, 1, m.Calls())

	req := m.Requests()[0]
	assert.Equal(t, DefaultInstruction, req.Instructions)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, builtin.IsHarmfulName, req.Tools[0].Function.Name)
	assert.True(t, req.Stream)
}

func TestLoop_IngestScenario(t *testing.T) {
	kb := &fakeKB{}
	m := model.NewScriptedModel(
		model.Turn{Calls: []core.FunctionCall{model.Call(builtin.AddResourceName, map[string]string{"content": "The sky is blue."})}},
		model.Turn{Text: "Thanks, I'll remember that the sky is blue."},
	)

	loop := NewLoop(m, newRegistry(t, builtin.NewAddResourceTool(kb), builtin.NewGetInformationTool(kb)))
	events, res := collectWithTimeout(t, loop.Run(context.Background(), userSays("The sky is blue.")))

	require.Equal(t, StateDone, res.State)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, []string{"The sky is blue."}, kb.ingested)

	assert.Equal(t, []core.EventType{
		core.EventStepStart, core.EventToolCall, core.EventToolResult, core.EventStepFinish,
		core.EventStepStart, core.EventTextDelta, core.EventStepFinish, core.EventFinish,
	}, eventTypes(events))

	result := eventsOfType(events, core.EventToolResult)[0].ToolResult
	require.NotNil(t, result)
	assert.Equal(t, builtin.IngestAcknowledgement, result.Response)
	assert.False(t, result.IsError())

	call := eventsOfType(events, core.EventToolCall)[0].ToolCall
	assert.NotEmpty(t, call.ID)
	assert.Equal(t, call.ID, result.ID)

	// The second model request sees exactly the first one plus the new messages.
	reqs := m.Requests()
	require.Len(t, reqs, 2)
	first, second := reqs[0].Contents, reqs[1].Contents
	require.Len(t, first, 1)
	require.Len(t, second, 3)
	assert.Equal(t, first[0], second[0])
	assert.Equal(t, core.RoleAssistant, second[1].Role)
	assert.Equal(t, core.RoleTool, second[2].Role)
	assert.Equal(t, builtin.IngestAcknowledgement, second[2].FunctionResponses()[0].Payload())

	require.Len(t, res.Trace, 2)
	assert.Equal(t, core.FinishToolCalls, res.Trace[0].FinishReason)
	require.Len(t, res.Trace[0].Results, 1)
}

func TestLoop_RetrievalScenario(t *testing.T) {
	ctx := context.Background()

	embedder, err := knowledge.NewEmbedder(ctx, knowledge.EmbedderConfig{Provider: knowledge.EmbedderHash, Dimension: 1024})
	require.NoError(t, err)

	kb, err := knowledge.NewService(vectordb.NewMemory(1024), embedder)
	require.NoError(t, err)

	_, err = kb.Ingest(ctx, "The sky is blue.")
	require.NoError(t, err)

	m := model.NewScriptedModelFunc(func(call int, req model.Request) model.Turn {
		if call == 0 {
			question := req.Contents[len(req.Contents)-1].Text()
			return model.Turn{Calls: []core.FunctionCall{model.Call(builtin.GetInformationName, map[string]string{"question": question})}}
		}

		payload := req.Contents[len(req.Contents)-1].FunctionResponses()[0].Payload()

		return model.Turn{Text: "According to my knowledge base: " + payload}
	})

	loop := NewLoop(m, newRegistry(t, builtin.NewAddResourceTool(kb), builtin.NewGetInformationTool(kb)))
	_, res := collectWithTimeout(t, loop.Run(ctx, userSays("What color is the sky?")))

	require.Equal(t, StateDone, res.State)
	assert.Contains(t, res.Text, "The sky is blue")

	fragments, ok := res.Trace[0].Results[0].Response.([]core.Fragment)
	require.True(t, ok)
	require.NotEmpty(t, fragments)
	assert.Equal(t, "The sky is blue", fragments[0].Text)
}

func TestLoop_LogsRemainingSteps(t *testing.T) {
	var buf bytes.Buffer

	m := model.NewScriptedModel(
		model.Turn{Calls: []core.FunctionCall{model.Call(builtin.AddResourceName, map[string]string{"content": "The sky is blue."})}},
		model.Turn{Text: "Noted."},
	)

	loop := NewLoop(m, newRegistry(t, builtin.NewAddResourceTool(&fakeKB{})), func(o *Options) {
		o.MaxSteps = 3
		o.Logger = logging.New(logging.Config{Level: logging.LogLevelDebug, Format: "json", Output: &buf})
	})

	_, res := collectWithTimeout(t, loop.Run(context.Background(), userSays("The sky is blue.")))
	require.Equal(t, StateDone, res.State)

	var remaining []float64

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))

		if entry["msg"] == "agent.step.start" {
			remaining = append(remaining, entry["remaining_steps"].(float64))
		}
	}

	assert.Equal(t, []float64{2, 1}, remaining)
}

func TestLoop_UnknownToolDoesNotAbort(t *testing.T) {
	m := model.NewScriptedModel(
		model.Turn{Calls: []core.FunctionCall{model.CallWithID("c1", "launchRockets", nil)}},
		model.Turn{Text: "I cannot do that."},
	)

	loop := NewLoop(m, newRegistry(t, builtin.NewIsHarmfulTool(nil)))
	events, res := collectWithTimeout(t, loop.Run(context.Background(), userSays("launch")))

	require.Equal(t, StateDone, res.State)

	results := eventsOfType(events, core.EventToolResult)
	require.Len(t, results, 1)
	assert.True(t, results[0].ToolResult.IsError())
	assert.Contains(t, results[0].ToolResult.Error, "unknown tool")
	assert.Equal(t, "c1", results[0].ToolResult.ID)

	toolMsg := m.Requests()[1].Contents[2]
	assert.JSONEq(t, fmt.Sprintf(`{"error":%q}`, results[0].ToolResult.Error), toolMsg.FunctionResponses()[0].Payload())
}

func TestLoop_ToolFailuresAreFoldedIntoHistory(t *testing.T) {
	failing := tool.NewFunctionTool("failing", "always fails", emptyObject, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, errors.New("backend down")
	})
	panicking := tool.NewFunctionTool("panicking", "panics", emptyObject, func(*core.ToolContext, map[string]any) (any, error) {
		panic("boom")
	})

	m := model.NewScriptedModel(
		model.Turn{Calls: []core.FunctionCall{
			model.Call(builtin.GetInformationName, map[string]any{}),
			model.Call("failing", nil),
			model.Call("panicking", nil),
			model.Call(builtin.IsHarmfulName, "{not json"),
		}},
		model.Turn{Text: "Let me try again later."},
	)

	loop := NewLoop(m, newRegistry(t, builtin.NewGetInformationTool(&fakeKB{}), failing, panicking, builtin.NewIsHarmfulTool(nil)))
	_, res := collectWithTimeout(t, loop.Run(context.Background(), userSays("?")))

	require.Equal(t, StateDone, res.State)

	results := res.Trace[0].Results
	require.Len(t, results, 4)

	for _, r := range results {
		assert.True(t, r.IsError(), r.Name)
	}

	assert.Contains(t, results[0].Error, tool.CodeValidation)
	assert.Contains(t, results[1].Error, "backend down")
	assert.Contains(t, results[2].Error, "panic recovered")
	assert.Contains(t, results[3].Error, tool.CodeValidation)
}

func TestLoop_BudgetExceeded(t *testing.T) {
	m := model.NewScriptedModelFunc(func(call int, _ model.Request) model.Turn {
		return model.Turn{
			Text:  fmt.Sprintf("step %d", call+1),
			Calls: []core.FunctionCall{model.Call(builtin.IsHarmfulName, map[string]string{"product": "widget"})},
		}
	})

	loop := NewLoop(m, newRegistry(t, builtin.NewIsHarmfulTool(nil)), func(o *Options) { o.MaxSteps = 10 })
	events, res := collectWithTimeout(t, loop.Run(context.Background(), userSays("loop forever")))

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, 10, res.Steps)
	assert.Equal(t, 10, m.Calls(), "no model call beyond the ceiling")
	assert.ErrorIs(t, res.Err, core.ErrBudgetExceeded)
	assert.True(t, strings.HasPrefix(res.Text, "step 1"))
	assert.True(t, strings.HasSuffix(res.Text, DefaultTruncationNotice))

	last := events[len(events)-1]
	assert.Equal(t, core.EventAbort, last.Type)
	assert.Equal(t, 10, last.Step)
	assert.Equal(t, core.FinishLength, last.FinishReason)
	assert.Empty(t, eventsOfType(events, core.EventFinish))

	prev := 0
	for _, ev := range eventsOfType(events, core.EventStepStart) {
		assert.Equal(t, prev+1, ev.Step, "step counter is strictly monotonic")
		prev = ev.Step
	}

	assert.Equal(t, 10, prev)
}

func TestLoop_SiblingResultsKeepRequestOrder(t *testing.T) {
	var (
		inFlight    atomic.Int32
		maxInFlight atomic.Int32
	)

	sleeper := func(d time.Duration, out string) func(*core.ToolContext, map[string]any) (any, error) {
		return func(*core.ToolContext, map[string]any) (any, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)

			for {
				cur := maxInFlight.Load()
				if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
					break
				}
			}

			time.Sleep(d)

			return out, nil
		}
	}

	slow := tool.NewFunctionTool("slow", "slow", emptyObject, sleeper(150*time.Millisecond, "slow-result"))
	medium := tool.NewFunctionTool("medium", "medium", emptyObject, sleeper(75*time.Millisecond, "medium-result"))
	fast := tool.NewFunctionTool("fast", "fast", emptyObject, sleeper(0, "fast-result"))

	m := model.NewScriptedModel(
		model.Turn{Calls: []core.FunctionCall{
			model.CallWithID("1", "slow", nil),
			model.CallWithID("2", "fast", nil),
			model.CallWithID("3", "medium", nil),
		}},
		model.Turn{Text: "done"},
	)

	loop := NewLoop(m, newRegistry(t, slow, medium, fast))
	events, res := collectWithTimeout(t, loop.Run(context.Background(), userSays("go")))

	require.Equal(t, StateDone, res.State)

	var ids []string
	for _, ev := range eventsOfType(events, core.EventToolResult) {
		ids = append(ids, ev.ToolResult.ID)
	}

	assert.Equal(t, []string{"1", "2", "3"}, ids)

	toolMsg := m.Requests()[1].Contents[2].FunctionResponses()
	require.Len(t, toolMsg, 3)
	assert.Equal(t, "slow-result", toolMsg[0].Response)
	assert.Equal(t, "fast-result", toolMsg[1].Response)
	assert.Equal(t, "medium-result", toolMsg[2].Response)
	assert.Greater(t, maxInFlight.Load(), int32(1), "siblings run concurrently")
}

func TestLoop_ModelUnavailable(t *testing.T) {
	m := model.NewScriptedModel(model.Turn{Err: errors.New("dial tcp: connection refused")})

	loop := NewLoop(m, nil)
	events, res := collectWithTimeout(t, loop.Run(context.Background(), userSays("hi")))

	assert.Equal(t, StateAborted, res.State)
	assert.ErrorIs(t, res.Err, core.ErrModelUnavailable)

	var unavailable *core.ModelUnavailableError
	require.ErrorAs(t, res.Err, &unavailable)
	assert.Equal(t, "scripted", unavailable.Provider)

	last := events[len(events)-1]
	assert.Equal(t, core.EventError, last.Type)
	assert.Equal(t, DefaultErrorMessage, last.ErrorMessage)
	assert.NotContains(t, last.ErrorMessage, "connection refused")
}

func TestLoop_CancellationStopsEmission(t *testing.T) {
	started := make(chan struct{})
	blocking := tool.NewFunctionTool("blocking", "waits for cancellation", emptyObject, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		close(started)
		<-tc.Context().Done()

		return nil, tc.Context().Err()
	})

	m := model.NewScriptedModel(
		model.Turn{Calls: []core.FunctionCall{model.Call("blocking", nil)}},
		model.Turn{Text: "never"},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := NewLoop(m, newRegistry(t, blocking), func(o *Options) { o.EventBufferSize = 0 })
	run := loop.Run(ctx, userSays("wait"))

	var seen []core.Event

	for ev := range run.Events() {
		seen = append(seen, ev)
		if ev.Type == core.EventToolCall {
			<-started
			cancel()
		}
	}

	res := run.Wait()

	assert.Equal(t, StateAborted, res.State)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, core.EventToolCall, seen[len(seen)-1].Type, "nothing is emitted after cancellation")
	assert.Equal(t, 1, m.Calls())
}

func TestLoop_SideEffectingToolCompletesAfterCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	var completed atomic.Bool

	writer := tool.NewFunctionTool("write", "writes", emptyObject, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		close(started)
		<-release

		if tc.Context().Err() != nil {
			return nil, tc.Context().Err()
		}

		completed.Store(true)

		return "written", nil
	}, tool.WithSideEffects())

	m := model.NewScriptedModel(
		model.Turn{Calls: []core.FunctionCall{model.Call("write", nil)}},
		model.Turn{Text: "never"},
	)

	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(m, newRegistry(t, writer))
	run := loop.Run(ctx, userSays("save"))

	<-started
	cancel()
	close(release)

	events, res := collectWithTimeout(t, run)

	assert.True(t, completed.Load(), "in-flight write finished")
	assert.Equal(t, StateAborted, res.State)
	assert.Empty(t, eventsOfType(events, core.EventToolResult), "results of discarded writes are not streamed")
	assert.Equal(t, 1, m.Calls())
}

func TestLoop_QueuedWritesDoNotStartAfterCancel(t *testing.T) {
	started := make(chan struct{}, 5)
	release := make(chan struct{})

	var runs atomic.Int32

	writer := tool.NewFunctionTool("write", "writes", emptyObject, func(*core.ToolContext, map[string]any) (any, error) {
		runs.Add(1)
		started <- struct{}{}
		<-release

		return "written", nil
	}, tool.WithSideEffects())

	calls := make([]core.FunctionCall, 5)
	for i := range calls {
		calls[i] = model.Call("write", map[string]int{"n": i})
	}

	m := model.NewScriptedModel(
		model.Turn{Calls: calls},
		model.Turn{Text: "never"},
	)

	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(m, newRegistry(t, writer), func(o *Options) { o.MaxParallelTools = 1 })
	run := loop.Run(ctx, userSays("save five facts"))

	<-started
	cancel()
	close(release)

	_, res := collectWithTimeout(t, run)

	assert.Equal(t, int32(1), runs.Load(), "only the write in flight at cancellation runs")
	assert.Equal(t, StateAborted, res.State)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 1, m.Calls())
}

func TestLoop_StreamingDeltas(t *testing.T) {
	turn := model.Turn{Text: "hello world", Chunks: []string{"hello ", "world"}}

	t.Run("streaming", func(t *testing.T) {
		loop := NewLoop(model.NewScriptedModel(turn), nil)
		events, res := collectWithTimeout(t, loop.Run(context.Background(), userSays("hi")))

		deltas := eventsOfType(events, core.EventTextDelta)
		require.Len(t, deltas, 2)
		assert.Equal(t, "hello ", deltas[0].Text)
		assert.Equal(t, "world", deltas[1].Text)
		assert.Equal(t, "hello world", res.Text)
	})

	t.Run("non-streaming", func(t *testing.T) {
		m := model.NewScriptedModel(turn)
		loop := NewLoop(m, nil, func(o *Options) { o.EnableStreaming = false })
		events, _ := collectWithTimeout(t, loop.Run(context.Background(), userSays("hi")))

		deltas := eventsOfType(events, core.EventTextDelta)
		require.Len(t, deltas, 1)
		assert.Equal(t, "hello world", deltas[0].Text)
		assert.False(t, m.Requests()[0].Stream)
	})
}

func TestLoop_ToolTimeout(t *testing.T) {
	hanging := tool.NewFunctionTool("hang", "hangs", emptyObject, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		<-tc.Context().Done()
		return nil, tc.Context().Err()
	})

	m := model.NewScriptedModel(
		model.Turn{Calls: []core.FunctionCall{model.Call("hang", nil)}},
		model.Turn{Text: "timed out"},
	)

	loop := NewLoop(m, newRegistry(t, hanging), func(o *Options) { o.ToolTimeout = 20 * time.Millisecond })
	_, res := collectWithTimeout(t, loop.Run(context.Background(), userSays("hang")))

	require.Equal(t, StateDone, res.State)
	assert.Contains(t, res.Trace[0].Results[0].Error, "deadline exceeded")
}

func TestLoop_ToolTimeoutSparesSideEffects(t *testing.T) {
	slowWrite := tool.NewFunctionTool("write", "writes slowly", emptyObject, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		select {
		case <-tc.Context().Done():
			return nil, tc.Context().Err()
		case <-time.After(60 * time.Millisecond):
			return "written", nil
		}
	}, tool.WithSideEffects())

	m := model.NewScriptedModel(
		model.Turn{Calls: []core.FunctionCall{model.Call("write", nil)}},
		model.Turn{Text: "saved"},
	)

	loop := NewLoop(m, newRegistry(t, slowWrite), func(o *Options) { o.ToolTimeout = 10 * time.Millisecond })
	_, res := collectWithTimeout(t, loop.Run(context.Background(), userSays("save")))

	require.Equal(t, StateDone, res.State)
	result := res.Trace[0].Results[0]
	assert.False(t, result.IsError(), result.Error)
	assert.Equal(t, "written", result.Response)
}

func TestNewLoop_NoToolTimeoutByDefault(t *testing.T) {
	loop := NewLoop(model.NewScriptedModel(), nil)
	assert.Zero(t, loop.opts.ToolTimeout)
	assert.Zero(t, loop.executor.timeout)
}

func TestLoop_InstructionTemplate(t *testing.T) {
	m := model.NewScriptedModel(model.Turn{Text: "ok"})
	kb := &fakeKB{}

	loop := NewLoop(m, newRegistry(t, builtin.NewAddResourceTool(kb), builtin.NewGetInformationTool(kb)), func(o *Options) {
		o.Instruction = NewInstructionFromText(`Tools: {{join ", " .Tools}}. Limit {{.MaxSteps}}.`)
		o.MaxSteps = 3
	})

	_, res := collectWithTimeout(t, loop.Run(context.Background(), userSays("hi")))
	require.Equal(t, StateDone, res.State)
	assert.Equal(t, "Tools: addResource, getInformation. Limit 3.", m.Requests()[0].Instructions)
}

func TestLoop_InstructionFailure(t *testing.T) {
	m := model.NewScriptedModel(model.Turn{Text: "ok"})
	loop := NewLoop(m, nil, func(o *Options) {
		o.Instruction = NewInstructionFromFunc(func(context.Context, map[string]any) (string, error) {
			return "", errors.New("template store offline")
		})
	})

	events, res := collectWithTimeout(t, loop.Run(context.Background(), userSays("hi")))

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, 0, m.Calls())
	require.Len(t, events, 1)
	assert.Equal(t, core.EventError, events[0].Type)
}

func TestLoop_ConcurrentRunsAreIndependent(t *testing.T) {
	m := model.NewScriptedModelFunc(func(_ int, req model.Request) model.Turn {
		return model.Turn{Text: "echo: " + req.Contents[0].Text()}
	})
	loop := NewLoop(m, nil)

	var wg sync.WaitGroup

	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results[i] = loop.Run(context.Background(), userSays(fmt.Sprint(i))).Wait()
		}()
	}

	wg.Wait()

	for i, res := range results {
		assert.Equal(t, StateDone, res.State)
		assert.Equal(t, fmt.Sprintf("echo: %d", i), res.Text)
		assert.Equal(t, 1, res.Steps)
	}
}

func TestDecodeArguments(t *testing.T) {
	args, err := decodeArguments("")
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = decodeArguments(`{"question":"sky"}`)
	require.NoError(t, err)
	assert.Equal(t, "sky", args["question"])

	_, err = decodeArguments(`[1,2]`)
	assert.ErrorIs(t, err, core.ErrValidation)

	args, err = decodeArguments(`null`)
	require.NoError(t, err)
	assert.NotNil(t, args)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "AWAITING_MODEL", StateAwaitingModel.String())
	assert.Equal(t, "EXECUTING_TOOLS", StateExecutingTools.String())
	assert.True(t, StateDone.IsTerminal())
	assert.True(t, StateAborted.IsTerminal())
	assert.False(t, StateExecutingTools.IsTerminal())
}
