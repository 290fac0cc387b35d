// Package agent implements the tool orchestration loop that answers one
// conversation turn.
//
// A Loop drives a bounded sequence of steps. Each step sends the conversation
// and the tool catalog to the model, streams the model's narrative, executes
// any requested tools concurrently and appends the assistant turn plus the
// tool results to the conversation before the next step:
//
//	AWAITING_MODEL --(no tool calls)--> DONE
//	AWAITING_MODEL --(tool calls)-----> EXECUTING_TOOLS --> AWAITING_MODEL
//	AWAITING_MODEL --(step limit / model failure / cancel)--> ABORTED
//
// Progress is published as core.Event values on an ordered channel that a
// stream presenter consumes. Tool failures never abort a run; they are folded
// into the conversation as error payloads so the model can recover.
package agent
