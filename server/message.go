package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/kbagent/core"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages []Message `json:"messages" validate:"required,min=1,dive"`
}

// Message is one chat message as sent by AI SDK clients. Assistant messages
// carry earlier tool activity in ToolInvocations; tool messages reply to a
// single call.
type Message struct {
	Role            string           `json:"role"                      validate:"required,oneof=user assistant system tool"`
	Content         string           `json:"content"`
	ToolInvocations []ToolInvocation `json:"toolInvocations,omitempty" validate:"dive"`
	ToolCallID      string           `json:"toolCallId,omitempty"      validate:"required_if=Role tool"`
	ToolName        string           `json:"toolName,omitempty"`
}

// ToolInvocation is a tool call recorded on an assistant message. Result is
// set once State is "result".
type ToolInvocation struct {
	State      string          `json:"state,omitempty"`
	ToolCallID string          `json:"toolCallId"      validate:"required"`
	ToolName   string          `json:"toolName"        validate:"required"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// ResourceRequest is the body of POST /api/resources.
type ResourceRequest struct {
	Content string `json:"content" validate:"required"`
}

// ResourceResponse acknowledges a direct ingest.
type ResourceResponse struct {
	ID     string `json:"id"`
	Chunks int    `json:"chunks"`
}

// ToConversation converts wire messages into the loop's conversation. An
// assistant message with tool invocations becomes the assistant turn
// followed by one tool message holding the recorded results.
func ToConversation(messages []Message) ([]core.Content, error) {
	conv := make([]core.Content, 0, len(messages))

	for i, m := range messages {
		switch m.Role {
		case core.RoleUser, core.RoleSystem:
			conv = append(conv, core.NewTextContent(m.Role, m.Content))
		case core.RoleAssistant:
			assistant, results := assistantTurn(m)
			conv = append(conv, assistant)

			if len(results.Parts) > 0 {
				conv = append(conv, results)
			}
		case core.RoleTool:
			conv = append(conv, core.Content{Role: core.RoleTool, Parts: []core.Part{
				core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
					ID:       m.ToolCallID,
					Name:     m.ToolName,
					Response: m.Content,
				}},
			}})
		default:
			return nil, fmt.Errorf("message %d: unsupported role %q", i, m.Role)
		}
	}

	return conv, nil
}

func assistantTurn(m Message) (core.Content, core.Content) {
	assistant := core.Content{Role: core.RoleAssistant}
	results := core.Content{Role: core.RoleTool}

	if strings.TrimSpace(m.Content) != "" {
		assistant.Parts = append(assistant.Parts, core.TextPart{Text: m.Content})
	}

	for _, inv := range m.ToolInvocations {
		args := "{}"
		if len(inv.Args) > 0 {
			args = string(inv.Args)
		}

		assistant.Parts = append(assistant.Parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        inv.ToolCallID,
			Name:      inv.ToolName,
			Arguments: args,
		}})

		if inv.State == "result" || len(inv.Result) > 0 {
			results.Parts = append(results.Parts, core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
				ID:       inv.ToolCallID,
				Name:     inv.ToolName,
				Response: resultPayload(inv.Result),
			}})
		}
	}

	return assistant, results
}

// resultPayload keeps string results as strings and everything else as raw
// JSON.
func resultPayload(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return raw
}
