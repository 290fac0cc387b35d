package openai

import (
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kbagent/core"
	"github.com/hupe1980/kbagent/model"
)

func sampleRequest() model.Request {
	return model.Request{
		Instructions: "You are a helpful assistant.",
		Contents: []core.Content{
			core.NewTextContent(core.RoleUser, "What color is the sky?"),
			{Role: core.RoleAssistant, Parts: []core.Part{
				core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "call-1", Name: "getInformation", Arguments: `{"question":"sky color"}`}},
				core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "call-2", Name: "isHarmful", Arguments: `{"product":"sky"}`}},
			}},
			{Role: core.RoleTool, Parts: []core.Part{
				core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "call-1", Name: "getInformation", Response: []core.Fragment{{Text: "The sky is blue", Score: 0.9}}}},
				core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "call-2", Name: "isHarmful", Error: "classifier offline"}},
			}},
		},
		Tools: []model.ToolDefinition{
			model.NewFunctionTool("getInformation", "get information", map[string]any{"type": "object"}),
		},
	}
}

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages(sampleRequest())
	require.Len(t, msgs, 5)

	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 2)
	assert.Equal(t, "call-1", msgs[2].OfAssistant.ToolCalls[0].ID)
	assert.JSONEq(t, `{"question":"sky color"}`, msgs[2].OfAssistant.ToolCalls[0].Function.Arguments)

	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "call-1", msgs[3].OfTool.ToolCallID)
	assert.JSONEq(t, `[{"text":"The sky is blue","score":0.9}]`, msgs[3].OfTool.Content.OfString.Value)

	require.NotNil(t, msgs[4].OfTool)
	assert.Equal(t, "call-2", msgs[4].OfTool.ToolCallID)
	assert.JSONEq(t, `{"error":"classifier offline"}`, msgs[4].OfTool.Content.OfString.Value)
}

func TestBuildMessages_PlainAssistantText(t *testing.T) {
	msgs := buildMessages(model.Request{Contents: []core.Content{
		core.NewTextContent(core.RoleUser, "The sky is blue."),
		core.NewTextContent(core.RoleAssistant, "Noted."),
	}})

	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[1].OfAssistant)
	assert.Empty(t, msgs[1].OfAssistant.ToolCalls)
	assert.Equal(t, "Noted.", msgs[1].OfAssistant.Content.OfString.Value)
}

func TestBuildParams(t *testing.T) {
	m := NewModelFromClient(nil, func(o *Options) { o.Model = "gpt-4o-mini" })

	params := m.buildParams(sampleRequest())

	require.Len(t, params.Tools, 1)
	assert.Equal(t, "getInformation", params.Tools[0].Function.Name)
	assert.EqualValues(t, "gpt-4o-mini", params.Model)
	assert.Len(t, params.Messages, 5)

	info := m.Info()
	assert.Equal(t, "openai", info.Provider)
	assert.True(t, info.SupportsTools)
}

func TestFinalResponse(t *testing.T) {
	resp, err := finalResponse(&openai.ChatCompletion{
		ID: "cmpl-1",
		Choices: []openai.ChatCompletionChoice{{
			FinishReason: "tool_calls",
			Message: openai.ChatCompletionMessage{
				ToolCalls: []openai.ChatCompletionMessageToolCall{
					{ID: "a", Function: openai.ChatCompletionMessageToolCallFunction{Name: "addResource", Arguments: `{"content":"x"}`}},
					{ID: "b", Function: openai.ChatCompletionMessageToolCallFunction{Name: "isHarmful", Arguments: `{"product":"x"}`}},
				},
			},
		}},
		Usage: openai.CompletionUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	})
	require.NoError(t, err)

	calls := resp.Content.FunctionCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].ID)
	assert.Equal(t, "isHarmful", calls[1].Name)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	_, err = finalResponse(&openai.ChatCompletion{})
	assert.ErrorIs(t, err, ErrNoChoices)
}
