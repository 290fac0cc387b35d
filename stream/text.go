package stream

import (
	"fmt"
	"io"

	"github.com/hupe1980/kbagent/core"
)

// TextEncoder renders the narrative for a terminal. Tool activity is shown
// only when Verbose is set.
type TextEncoder struct {
	Verbose bool
}

var _ Encoder = TextEncoder{}

// ContentType implements Encoder.
func (TextEncoder) ContentType() string { return "text/plain; charset=utf-8" }

// Headers implements Encoder.
func (TextEncoder) Headers() map[string]string { return nil }

// Encode implements Encoder.
func (e TextEncoder) Encode(w io.Writer, ev core.Event) error {
	var out string

	switch ev.Type {
	case core.EventTextDelta:
		out = ev.Text
	case core.EventToolCall:
		if e.Verbose && ev.ToolCall != nil {
			out = fmt.Sprintf("\n> %s %s\n", ev.ToolCall.Name, ev.ToolCall.Arguments)
		}
	case core.EventToolResult:
		if e.Verbose && ev.ToolResult != nil {
			out = fmt.Sprintf("< %s %s\n", ev.ToolResult.Name, ev.ToolResult.Payload())
		}
	case core.EventFinish:
		out = "\n"
	case core.EventAbort:
		out = "\n\n" + ev.Text + "\n"
	case core.EventError:
		out = "\nerror: " + ev.ErrorMessage + "\n"
	}

	if out == "" {
		return nil
	}

	_, err := io.WriteString(w, out)

	return err
}
