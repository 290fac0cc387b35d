// Package bootstrap wires configured components into a running application:
// logger, metrics, embedder, vector store, knowledge service, model and the
// agent façade.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/kbagent"
	"github.com/hupe1980/kbagent/agent"
	"github.com/hupe1980/kbagent/config"
	"github.com/hupe1980/kbagent/internal/metrics"
	"github.com/hupe1980/kbagent/knowledge"
	"github.com/hupe1980/kbagent/knowledge/vectordb"
	"github.com/hupe1980/kbagent/logging"
	"github.com/hupe1980/kbagent/model"
	"github.com/hupe1980/kbagent/model/anthropic"
	"github.com/hupe1980/kbagent/model/googleai"
	"github.com/hupe1980/kbagent/model/openai"
	"github.com/hupe1980/kbagent/tool/builtin"
)

// Options overrides components that would otherwise be built from config.
type Options struct {
	Model     model.Model        // Skips provider construction when set
	Embedder  knowledge.Embedder // Skips embedder construction when set
	Store     vectordb.Store     // Skips store construction when set
	LogOutput io.Writer          // Defaults to stderr
	Registry  *prometheus.Registry
}

// App holds the wired components.
type App struct {
	Config    *config.Config
	Logger    logging.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Recorder
	Knowledge *knowledge.Service
	Agent     *kbagent.Agent
}

// New builds an App from cfg.
func New(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}

	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger, err := NewLogger(cfg.Log, opts.LogOutput)
	if err != nil {
		return nil, err
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	kb, err := newKnowledge(ctx, cfg.Knowledge, opts, logger)
	if err != nil {
		return nil, err
	}

	llm := opts.Model
	if llm == nil {
		llm, err = NewModel(ctx, cfg.Model)
		if err != nil {
			_ = kb.Close(ctx)
			return nil, err
		}
	}

	var classifier builtin.Classifier
	if len(cfg.Classifier.Terms) > 0 {
		classifier = builtin.KeywordClassifier{Terms: cfg.Classifier.Terms}
	}

	a, err := kbagent.New(llm, kb, func(o *kbagent.Options) {
		o.Classifier = classifier
		o.Logger = logger
		o.Loop = append(o.Loop, LoopOptions(cfg.Agent, recorder))
	})
	if err != nil {
		_ = kb.Close(ctx)
		return nil, err
	}

	info := llm.Info()
	logger.Info("bootstrap.ready",
		"model_provider", info.Provider,
		"model", info.Name,
		"vector_db", cfg.Knowledge.VectorDB.Provider,
		"embedder", cfg.Knowledge.Embedder.Provider,
	)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Registry:  reg,
		Metrics:   recorder,
		Knowledge: kb,
		Agent:     a,
	}, nil
}

// Close releases the knowledge base resources.
func (a *App) Close(ctx context.Context) error {
	return a.Knowledge.Close(ctx)
}

// NewLogger builds the structured logger described by cfg.
func NewLogger(cfg config.LogConfig, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return logging.New(logging.Config{
		Level:     level,
		Format:    cfg.Format,
		Output:    out,
		AddSource: cfg.AddSource,
		Component: "kbagent",
	}), nil
}

// LoopOptions maps the agent section onto agent.Options.
func LoopOptions(cfg config.AgentConfig, recorder *metrics.Recorder) func(o *agent.Options) {
	return func(o *agent.Options) {
		if strings.TrimSpace(cfg.Instruction) != "" {
			o.Instruction = agent.NewInstructionFromText(cfg.Instruction)
		}

		o.MaxSteps = cfg.MaxSteps
		o.MaxParallelTools = cfg.MaxParallelTools
		o.ToolTimeout = cfg.ToolTimeout
		o.EnableStreaming = cfg.Streaming
		o.Metrics = recorder

		if cfg.TruncationNotice != "" {
			o.TruncationNotice = cfg.TruncationNotice
		}

		if cfg.ErrorMessage != "" {
			o.ErrorMessage = cfg.ErrorMessage
		}
	}
}

// NewModel constructs the configured model provider.
func NewModel(ctx context.Context, cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "googleai":
		m, err := googleai.NewModel(ctx, func(o *googleai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}

			o.APIKey = cfg.APIKey
			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
		})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}

		return m, nil
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}

			o.APIKey = cfg.APIKey
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = int64(cfg.MaxTokens)
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}

			o.APIKey = cfg.APIKey
			o.Temperature = cfg.Temperature
			o.MaxTokens = int64(cfg.MaxTokens)
		}), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown model provider %q", cfg.Provider)
	}
}

func newKnowledge(ctx context.Context, cfg config.KnowledgeConfig, opts Options, logger logging.Logger) (*knowledge.Service, error) {
	embedder := opts.Embedder
	if embedder == nil {
		var err error

		embedder, err = knowledge.NewEmbedder(ctx, knowledge.EmbedderConfig{
			Provider:      knowledge.EmbedderProvider(cfg.Embedder.Provider),
			Model:         cfg.Embedder.Model,
			APIKey:        cfg.Embedder.APIKey,
			Dimension:     cfg.Embedder.Dimension,
			BatchSize:     cfg.Embedder.BatchSize,
			StripNewLines: cfg.Embedder.StripNewLines,
			CacheSize:     cfg.Embedder.CacheSize,
		})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}

	store := opts.Store
	if store == nil {
		var err error

		store, err = vectordb.New(ctx, vectordb.Config{
			Provider:    vectordb.Provider(cfg.VectorDB.Provider),
			DSN:         cfg.VectorDB.DSN,
			Table:       cfg.VectorDB.Table,
			Key:         cfg.VectorDB.Key,
			Dimension:   cfg.Embedder.Dimension,
			EnsureIndex: cfg.VectorDB.EnsureIndex,
		})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}

	kb, err := knowledge.NewService(store, embedder, func(o *knowledge.Options) {
		o.TopK = cfg.TopK
		o.MinScore = cfg.MinScore
		o.Retry = knowledge.RetryConfig{
			Attempts: uint64(max(cfg.Retry.Attempts, 0)),
			Base:     cfg.Retry.BaseDelay,
			Max:      cfg.Retry.MaxDelay,
		}
		o.Logger = logger
	})
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return kb, nil
}
