package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies an Event in the stream a request produces.
type EventType string

const (
	// EventStepStart opens a model step.
	EventStepStart EventType = "step-start"
	// EventTextDelta carries a fragment of assistant narrative.
	EventTextDelta EventType = "text-delta"
	// EventToolCall announces a tool invocation requested by the model.
	EventToolCall EventType = "tool-call"
	// EventToolResult carries the outcome of a tool invocation.
	EventToolResult EventType = "tool-result"
	// EventStepFinish closes a model step.
	EventStepFinish EventType = "step-finish"
	// EventFinish ends a successful run with the final answer.
	EventFinish EventType = "finish"
	// EventAbort ends a run that hit its step budget.
	EventAbort EventType = "abort"
	// EventError ends a run with a terminal failure.
	EventError EventType = "error"
)

// Finish reasons attached to step-finish, finish and abort events.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool-calls"
	FinishLength    = "length"
	FinishError     = "error"
)

// Event is one element of the ordered stream delivered to a caller. After
// emission it must be treated as immutable.
//
// Only the fields relevant to Type are populated: Text for deltas, finish and
// abort events; ToolCall / ToolResult for tool events; FinishReason for
// step-finish, finish and abort; ErrorMessage for error events.
type Event struct {
	ID           string            `json:"id"`
	RunID        string            `json:"run_id"`
	Type         EventType         `json:"type"`
	Step         int               `json:"step"`
	Timestamp    time.Time         `json:"timestamp"`
	Text         string            `json:"text,omitempty"`
	ToolCall     *FunctionCall     `json:"tool_call,omitempty"`
	ToolResult   *FunctionResponse `json:"tool_result,omitempty"`
	FinishReason string            `json:"finish_reason,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// NewEvent creates a bare event of the given type bound to a run and step.
func NewEvent(runID string, typ EventType, step int) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Type:      typ,
		Step:      step,
		Timestamp: time.Now().UTC(),
	}
}

// NewStepStartEvent opens step n.
func NewStepStartEvent(runID string, step int) Event {
	return NewEvent(runID, EventStepStart, step)
}

// NewTextDeltaEvent carries a narrative fragment.
func NewTextDeltaEvent(runID string, step int, text string) Event {
	e := NewEvent(runID, EventTextDelta, step)
	e.Text = text

	return e
}

// NewToolCallEvent announces an invocation.
func NewToolCallEvent(runID string, step int, fc FunctionCall) Event {
	e := NewEvent(runID, EventToolCall, step)
	e.ToolCall = &fc

	return e
}

// NewToolResultEvent carries an invocation outcome.
func NewToolResultEvent(runID string, step int, fr FunctionResponse) Event {
	e := NewEvent(runID, EventToolResult, step)
	e.ToolResult = &fr

	return e
}

// NewStepFinishEvent closes step n with a finish reason.
func NewStepFinishEvent(runID string, step int, reason string) Event {
	e := NewEvent(runID, EventStepFinish, step)
	e.FinishReason = reason

	return e
}

// NewFinishEvent ends a run with the final answer text.
func NewFinishEvent(runID string, step int, text string) Event {
	e := NewEvent(runID, EventFinish, step)
	e.Text = text
	e.FinishReason = FinishStop

	return e
}

// NewAbortEvent ends a run that ran out of budget. Text holds the truncation
// notice shown to the user.
func NewAbortEvent(runID string, step int, notice string) Event {
	e := NewEvent(runID, EventAbort, step)
	e.Text = notice
	e.FinishReason = FinishLength

	return e
}

// NewErrorEvent ends a run with a caller-safe failure message.
func NewErrorEvent(runID string, step int, message string) Event {
	e := NewEvent(runID, EventError, step)
	e.ErrorMessage = message
	e.FinishReason = FinishError

	return e
}

// IsTerminal reports whether no further events follow this one.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case EventFinish, EventAbort, EventError:
		return true
	}

	return false
}

// NewID generates a new unique identifier for runs, events and tool calls.
func NewID() string { return uuid.NewString() }
