package stream

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hupe1980/kbagent/core"
)

// SSEEncoder writes each event as a server-sent event frame whose data is
// the JSON encoded event.
type SSEEncoder struct{}

var _ Encoder = SSEEncoder{}

// ContentType implements Encoder.
func (SSEEncoder) ContentType() string { return "text/event-stream" }

// Headers implements Encoder.
func (SSEEncoder) Headers() map[string]string {
	return map[string]string{
		"Cache-Control": "no-cache",
		"Connection":    "keep-alive",
	}
}

// Encode implements Encoder.
func (SSEEncoder) Encode(w io.Writer, ev core.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}

	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, body)

	return err
}
