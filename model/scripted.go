package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/kbagent/core"
)

// ErrScriptExhausted is returned by ScriptedModel when no turn is left.
var ErrScriptExhausted = errors.New("scripted model: no turns left")

// Turn is one scripted model reply.
type Turn struct {
	Text  string              // Final assistant text
	Calls []core.FunctionCall // Tool invocations requested in this turn
	Err   error               // Provider failure to report instead of a reply
	Delay time.Duration       // Latency before replying (honours ctx)
	// Chunks overrides how Text is streamed when the request asks for
	// streaming. Empty means Text is sent as a single partial.
	Chunks []string
}

// Call builds a FunctionCall with JSON encoded args and no id.
func Call(name string, args any) core.FunctionCall {
	return CallWithID("", name, args)
}

// CallWithID builds a FunctionCall with JSON encoded args.
func CallWithID(id, name string, args any) core.FunctionCall {
	var encoded string

	switch v := args.(type) {
	case nil:
		encoded = "{}"
	case string:
		encoded = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			panic(fmt.Sprintf("scripted call %s: %v", name, err))
		}

		encoded = string(b)
	}

	return core.FunctionCall{ID: id, Name: name, Arguments: encoded}
}

// ScriptedModel is a deterministic in-memory Model for tests and examples. It
// replies with pre-recorded turns (or a responder function) and records every
// request it receives.
type ScriptedModel struct {
	mu        sync.Mutex
	info      Info
	turns     []Turn
	responder func(call int, req Request) Turn
	requests  []Request
}

// NewScriptedModel replays turns in order.
func NewScriptedModel(turns ...Turn) *ScriptedModel {
	return &ScriptedModel{
		info:  Info{Name: "scripted", Provider: "scripted", SupportsTools: true},
		turns: turns,
	}
}

// NewScriptedModelFunc computes each reply from the 0-based call index and the request.
func NewScriptedModelFunc(fn func(call int, req Request) Turn) *ScriptedModel {
	m := NewScriptedModel()
	m.responder = fn

	return m
}

// Requests returns copies of every request received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Request(nil), m.requests...)
}

// Calls returns the number of Generate invocations.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}

func (m *ScriptedModel) next(req Request) (Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := len(m.requests)
	req.Contents = core.CloneContents(req.Contents)
	m.requests = append(m.requests, req)

	if m.responder != nil {
		return m.responder(call, req), nil
	}

	if call >= len(m.turns) {
		return Turn{}, ErrScriptExhausted
	}

	return m.turns[call], nil
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	out := make(chan Response, 16)
	errCh := make(chan error, 1)

	turn, err := m.next(req)

	go func() {
		defer close(out)
		defer close(errCh)

		if err != nil {
			errCh <- err
			return
		}

		if turn.Delay > 0 {
			timer := time.NewTimer(turn.Delay)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-timer.C:
			}
		}

		if turn.Err != nil {
			errCh <- turn.Err
			return
		}

		if req.Stream && turn.Text != "" {
			chunks := turn.Chunks
			if len(chunks) == 0 {
				chunks = []string{turn.Text}
			}

			for _, c := range chunks {
				if !Send(ctx, out, Response{Partial: true, Content: core.NewTextContent(core.RoleAssistant, c)}) {
					errCh <- ctx.Err()
					return
				}
			}
		}

		parts := make([]core.Part, 0, len(turn.Calls)+1)
		if turn.Text != "" {
			parts = append(parts, core.TextPart{Text: turn.Text})
		}

		for _, fc := range turn.Calls {
			parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
		}

		finish := "stop"
		if len(turn.Calls) > 0 {
			finish = "tool_calls"
		}

		Send(ctx, out, Response{
			ID:           core.NewID(),
			Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
			FinishReason: finish,
		})
	}()

	return out, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }
