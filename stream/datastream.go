package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hupe1980/kbagent/core"
)

// DataStreamVersionHeader marks a response as a data stream.
const DataStreamVersionHeader = "X-Vercel-AI-Data-Stream"

// Data stream part prefixes.
const (
	partText       = "0"
	partError      = "3"
	partToolCall   = "9"
	partToolResult = "a"
	partStepFinish = "e"
	partFinish     = "d"
	partStepStart  = "f"
)

// DataStreamEncoder writes the line protocol consumed by AI SDK chat
// clients. Every line is `<code>:<json>\n`.
type DataStreamEncoder struct{}

var _ Encoder = DataStreamEncoder{}

// ContentType implements Encoder.
func (DataStreamEncoder) ContentType() string { return "text/plain; charset=utf-8" }

// Headers implements Encoder.
func (DataStreamEncoder) Headers() map[string]string {
	return map[string]string{DataStreamVersionHeader: "v1"}
}

type usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

type stepStartPart struct {
	MessageID string `json:"messageId"`
}

type toolCallPart struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Args       any    `json:"args"`
}

type toolResultPart struct {
	ToolCallID string `json:"toolCallId"`
	Result     any    `json:"result"`
}

type stepFinishPart struct {
	FinishReason string `json:"finishReason"`
	Usage        usage  `json:"usage"`
	IsContinued  bool   `json:"isContinued"`
}

type finishPart struct {
	FinishReason string `json:"finishReason"`
	Usage        usage  `json:"usage"`
}

// Encode implements Encoder. An abort becomes the truncation notice as text
// followed by a finish part with reason "length".
func (DataStreamEncoder) Encode(w io.Writer, ev core.Event) error {
	var buf bytes.Buffer

	var err error

	switch ev.Type {
	case core.EventStepStart:
		err = writePart(&buf, partStepStart, stepStartPart{MessageID: "msg-" + ev.ID})
	case core.EventTextDelta:
		err = writePart(&buf, partText, ev.Text)
	case core.EventToolCall:
		if ev.ToolCall == nil {
			return fmt.Errorf("tool-call event %s without call", ev.ID)
		}

		err = writePart(&buf, partToolCall, toolCallPart{
			ToolCallID: ev.ToolCall.ID,
			ToolName:   ev.ToolCall.Name,
			Args:       rawArguments(ev.ToolCall.Arguments),
		})
	case core.EventToolResult:
		if ev.ToolResult == nil {
			return fmt.Errorf("tool-result event %s without result", ev.ID)
		}

		err = writePart(&buf, partToolResult, toolResultPart{
			ToolCallID: ev.ToolResult.ID,
			Result:     resultValue(*ev.ToolResult),
		})
	case core.EventStepFinish:
		err = writePart(&buf, partStepFinish, stepFinishPart{FinishReason: ev.FinishReason})
	case core.EventFinish:
		err = writePart(&buf, partFinish, finishPart{FinishReason: ev.FinishReason})
	case core.EventAbort:
		if err = writePart(&buf, partText, "\n\n"+ev.Text); err == nil {
			err = writePart(&buf, partFinish, finishPart{FinishReason: core.FinishLength})
		}
	case core.EventError:
		err = writePart(&buf, partError, ev.ErrorMessage)
	default:
		return nil
	}

	if err != nil {
		return err
	}

	_, err = w.Write(buf.Bytes())

	return err
}

func writePart(buf *bytes.Buffer, code string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s part: %w", code, err)
	}

	buf.WriteString(code)
	buf.WriteByte(':')
	buf.Write(b)
	buf.WriteByte('\n')

	return nil
}

// rawArguments passes valid JSON arguments through untouched and falls back
// to the raw string otherwise.
func rawArguments(args string) any {
	if args == "" {
		return json.RawMessage("{}")
	}

	if json.Valid([]byte(args)) {
		return json.RawMessage(args)
	}

	return args
}

func resultValue(fr core.FunctionResponse) any {
	if fr.IsError() {
		return map[string]string{"error": fr.Error}
	}

	return fr.Response
}
