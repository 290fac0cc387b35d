package agent

import "github.com/hupe1980/kbagent/core"

// Run is a handle on one in-flight loop execution.
type Run struct {
	id     string
	events chan core.Event
	done   chan struct{}
	result Result
}

// ID returns the run identifier stamped on every event.
func (r *Run) ID() string { return r.id }

// Events returns the ordered event stream. The channel is closed after the
// terminal event (or after cancellation). The run blocks while the channel is
// full, so it must be drained.
func (r *Run) Events() <-chan core.Event { return r.events }

// Done is closed once the run has terminated and its Result is available.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait discards events not yet consumed and returns the final Result.
func (r *Run) Wait() Result {
	for range r.events {
	}

	<-r.done

	return r.result
}

// Collect gathers all remaining events and returns them with the Result.
func (r *Run) Collect() ([]core.Event, Result) {
	var events []core.Event
	for ev := range r.events {
		events = append(events, ev)
	}

	<-r.done

	return events, r.result
}
