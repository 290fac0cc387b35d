package agent

import (
	"context"
	"time"

	"github.com/hupe1980/kbagent/internal/util"
)

// DefaultInstruction is the system instruction used when none is configured.
const DefaultInstruction = "You are a helpful assistant. Check your knowledge base before answering any questions. " +
	"you can also do multi step reasoning."

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(ctx context.Context, vars map[string]any) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(ctx context.Context, vars map[string]any) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ctx context.Context, vars map[string]any) (string, error) { return f(ctx, vars) }

// Instruction is either a static template or a dynamic provider. Static text
// may reference {{.Tools}} (registered tool names), {{.MaxSteps}} and
// {{.Now}}.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static template.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context, vars map[string]any) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// IsZero reports whether neither text nor provider is set.
func (i Instruction) IsZero() bool { return i.provider == nil && i.text == "" }

// Resolve returns the instruction text, invoking the provider or rendering
// the template as needed.
func (i Instruction) Resolve(ctx context.Context, vars map[string]any) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ctx, vars)
	}

	return util.RenderTemplate(i.text, vars)
}

func instructionVars(tools []string, maxSteps int) map[string]any {
	return map[string]any{
		"Tools":    tools,
		"MaxSteps": maxSteps,
		"Now":      time.Now().UTC(),
	}
}
