// Package kbagent provides a high-level façade over the tool orchestration
// loop, the built-in knowledge tools and the stream presenter. Most
// applications interact with this package by:
//  1. Creating an Agent via New() with a model and a knowledge base
//  2. Running a conversation asynchronously (Run) or synchronously (Ask)
//  3. Streaming a run onto a connection with Chat
//
// The façade registers the addResource, getInformation and isHarmful tools
// and delegates orchestration to agent.Loop. All defaults are safe for local
// development and testing.
package kbagent

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/kbagent/agent"
	"github.com/hupe1980/kbagent/core"
	"github.com/hupe1980/kbagent/logging"
	"github.com/hupe1980/kbagent/model"
	"github.com/hupe1980/kbagent/stream"
	"github.com/hupe1980/kbagent/tool"
	"github.com/hupe1980/kbagent/tool/builtin"
)

// Options configures the Agent.
type Options struct {
	// Classifier backs the isHarmful tool. Nil uses builtin.StaticClassifier.
	Classifier builtin.Classifier

	// Tools are registered after the built-in tools.
	Tools []tool.Tool

	// Loop options forwarded to agent.NewLoop (instruction, step ceiling,
	// parallelism, metrics).
	Loop []func(o *agent.Options)

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Agent is the high-level façade aggregating the loop and its tools.
type Agent struct {
	opts     Options
	registry *tool.Registry
	loop     *agent.Loop
}

// New creates an Agent answering with llm and storing knowledge in kb.
func New(llm model.Model, kb core.KnowledgeBase, optFns ...func(o *Options)) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("kbagent: model is required")
	}

	if kb == nil {
		return nil, errors.New("kbagent: knowledge base is required")
	}

	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	tools := append([]tool.Tool{
		builtin.NewAddResourceTool(kb),
		builtin.NewGetInformationTool(kb),
		builtin.NewIsHarmfulTool(opts.Classifier),
	}, opts.Tools...)

	registry, err := tool.NewRegistry(tools...)
	if err != nil {
		return nil, fmt.Errorf("kbagent: register tools: %w", err)
	}

	loopOpts := append([]func(o *agent.Options){
		func(o *agent.Options) { o.Logger = opts.Logger },
	}, opts.Loop...)

	return &Agent{
		opts:     opts,
		registry: registry,
		loop:     agent.NewLoop(llm, registry, loopOpts...),
	}, nil
}

// Tools returns the catalog presented to the model.
func (a *Agent) Tools() []tool.Descriptor { return a.loop.Tools() }

// Loop returns the underlying state machine.
func (a *Agent) Loop() *agent.Loop { return a.loop }

// Run starts processing conversation asynchronously.
func (a *Agent) Run(ctx context.Context, conversation []core.Content) *agent.Run {
	return a.loop.Run(ctx, conversation)
}

// Ask is a synchronous helper that runs a single user question and returns
// the final Result.
func (a *Agent) Ask(ctx context.Context, question string) agent.Result {
	return a.loop.Run(ctx, []core.Content{core.NewTextContent(core.RoleUser, question)}).Wait()
}

// Chat runs conversation and streams its events to w with enc. When the
// presenter stops early (cancellation or a closed connection) the run is
// cancelled. The returned error is the presenter's; the run outcome is in
// the Result.
func (a *Agent) Chat(ctx context.Context, conversation []core.Content, w io.Writer, enc stream.Encoder) (agent.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := a.loop.Run(ctx, conversation)

	err := stream.NewPresenter(enc, func(o *stream.Options) { o.Logger = a.opts.Logger }).Present(ctx, w, run.Events())

	cancel()

	return run.Wait(), err
}
