// Package googleai provides a model.Model implementation for Google Gemini
// models through langchaingo's googleai client, including streaming and tool
// calling.
package googleai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	lcgoogle "github.com/tmc/langchaingo/llms/googleai"

	"github.com/hupe1980/kbagent/core"
	"github.com/hupe1980/kbagent/model"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-1.5-flash-8b-latest"

// Options configures the Gemini adapter.
type Options struct {
	Model       string
	APIKey      string // Falls back to the client's environment lookup when empty
	Temperature float64
	MaxTokens   int
}

func defaultOptions() Options {
	return Options{
		Model:       DefaultModel,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Model adapts a langchaingo llms.Model backed by Gemini to model.Model.
type Model struct {
	llm  llms.Model
	opts Options
}

// NewModel creates a Gemini model using langchaingo's googleai client.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []lcgoogle.Option{lcgoogle.WithDefaultModel(opts.Model)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, lcgoogle.WithAPIKey(opts.APIKey))
	}

	client, err := lcgoogle.New(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("googleai: init client: %w", err)
	}

	return &Model{llm: client, opts: opts}, nil
}

// NewModelFromLLM wraps an existing langchaingo model.
func NewModelFromLLM(llm llms.Model, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{llm: llm, opts: opts}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		callOpts := m.callOptions(req)
		if req.Stream {
			callOpts = append(callOpts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}

				if !model.Send(ctx, out, model.Response{
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, string(chunk)),
				}) {
					return ctx.Err()
				}

				return nil
			}))
		}

		resp, err := m.llm.GenerateContent(ctx, buildMessages(req), callOpts...)
		if err != nil {
			errCh <- fmt.Errorf("googleai api error: %w", err)
			return
		}

		final, err := convertResponse(resp)
		if err != nil {
			errCh <- err
			return
		}

		model.Send(ctx, out, final)
	}()

	return out, errCh
}

func (m *Model) callOptions(req model.Request) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithModel(m.opts.Model),
		llms.WithTemperature(m.opts.Temperature),
	}

	if m.opts.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(m.opts.MaxTokens))
	}

	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(convertTools(req.Tools)))
	}

	return opts
}

// buildMessages converts the normalized request into langchaingo messages.
func buildMessages(req model.Request) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.Contents)+1)
	if req.Instructions != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.Instructions))
	}

	for _, c := range req.Contents {
		switch c.Role {
		case core.RoleSystem:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, c.Text()))
		case core.RoleAssistant:
			msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			for _, p := range c.Parts {
				switch part := p.(type) {
				case core.TextPart:
					if part.Text != "" {
						msg.Parts = append(msg.Parts, llms.TextContent{Text: part.Text})
					}
				case core.FunctionCallPart:
					msg.Parts = append(msg.Parts, llms.ToolCall{
						ID:   part.FunctionCall.ID,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      part.FunctionCall.Name,
							Arguments: part.FunctionCall.Arguments,
						},
					})
				}
			}

			if len(msg.Parts) > 0 {
				messages = append(messages, msg)
			}
		case core.RoleTool:
			msg := llms.MessageContent{Role: llms.ChatMessageTypeTool}
			for _, fr := range c.FunctionResponses() {
				msg.Parts = append(msg.Parts, llms.ToolCallResponse{
					ToolCallID: fr.ID,
					Name:       fr.Name,
					Content:    fr.Payload(),
				})
			}

			if len(msg.Parts) > 0 {
				messages = append(messages, msg)
			}
		default:
			if text := c.Text(); text != "" {
				messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, text))
			}
		}
	}

	return messages
}

func convertTools(defs []model.ToolDefinition) []llms.Tool {
	tools := make([]llms.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        def.Function.Name,
				Description: def.Function.Description,
				Parameters:  def.Function.Parameters,
			},
		})
	}

	return tools
}

// convertResponse maps the first choice onto a final model.Response.
func convertResponse(resp *llms.ContentResponse) (model.Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return model.Response{}, fmt.Errorf("googleai: empty response")
	}

	choice := resp.Choices[0]

	parts := make([]core.Part, 0, len(choice.ToolCalls)+1)
	if choice.Content != "" {
		parts = append(parts, core.TextPart{Text: choice.Content})
	}

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}

		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: tc.FunctionCall.Arguments,
		}})
	}

	finish := choice.StopReason
	if finish == "" {
		finish = "stop"
	}

	return model.Response{
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finish,
	}, nil
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "googleai",
		SupportsTools: true,
	}
}
