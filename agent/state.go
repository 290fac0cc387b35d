package agent

import (
	"time"

	"github.com/hupe1980/kbagent/core"
)

// State is the position of a run in the loop state machine.
type State int

const (
	StateAwaitingModel State = iota
	StateExecutingTools
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "AWAITING_MODEL"
	case StateExecutingTools:
		return "EXECUTING_TOOLS"
	case StateDone:
		return "DONE"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state name in JSON and logs.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// IsTerminal reports whether the run has ended.
func (s State) IsTerminal() bool { return s == StateDone || s == StateAborted }

// StepRecord is one iteration of the loop: the model output plus the
// invocations it requested and their results, in request order.
type StepRecord struct {
	Index        int                     `json:"index"`
	Output       core.Content            `json:"output"`
	Invocations  []core.FunctionCall     `json:"invocations,omitempty"`
	Results      []core.FunctionResponse `json:"results,omitempty"`
	FinishReason string                  `json:"finish_reason"`
	Duration     time.Duration           `json:"duration"`
}

// Result summarizes a finished run.
type Result struct {
	RunID string `json:"run_id"`
	State State  `json:"state"`
	// Steps is the number of model steps started.
	Steps int          `json:"steps"`
	Trace []StepRecord `json:"trace"`
	// Conversation is the caller's conversation followed by every message the
	// run appended.
	Conversation []core.Content `json:"-"`
	// Text is the final answer for DONE runs and the partial narrative plus the
	// truncation notice for budget aborts.
	Text string `json:"text"`
	// Err is nil for DONE runs. It is a *core.BudgetExceededError,
	// *core.ModelUnavailableError or the context error for aborted runs.
	Err error `json:"-"`
}
