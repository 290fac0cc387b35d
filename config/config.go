// Package config loads the runtime configuration of kbagent. Values are
// layered: built-in defaults, then an optional .env file, then KBAGENT_*
// environment variables, then explicit overrides (CLI flags). The result is
// validated once and passed explicitly to the components that need it.
package config

import (
	"time"
)

// Config is the complete runtime configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Model      ModelConfig      `koanf:"model"`
	Agent      AgentConfig      `koanf:"agent"`
	Knowledge  KnowledgeConfig  `koanf:"knowledge"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Log        LogConfig        `koanf:"log"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr            string        `koanf:"addr"             validate:"required"`
	Protocol        string        `koanf:"protocol"         validate:"oneof=data sse"`
	RequestTimeout  time.Duration `koanf:"request_timeout"  validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

// ModelConfig selects the language model.
type ModelConfig struct {
	Provider    string  `koanf:"provider"    validate:"oneof=googleai openai anthropic"`
	Name        string  `koanf:"name"`
	APIKey      string  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `koanf:"max_tokens"  validate:"gt=0"`
}

// AgentConfig tunes the tool orchestration loop.
type AgentConfig struct {
	Instruction      string        `koanf:"instruction"`
	MaxSteps         int           `koanf:"max_steps"          validate:"gt=0"`
	MaxParallelTools int           `koanf:"max_parallel_tools" validate:"gte=0"`
	ToolTimeout      time.Duration `koanf:"tool_timeout"       validate:"gte=0"`
	Streaming        bool          `koanf:"streaming"`
	TruncationNotice string        `koanf:"truncation_notice"`
	ErrorMessage     string        `koanf:"error_message"`
}

// KnowledgeConfig configures ingestion and retrieval.
type KnowledgeConfig struct {
	Embedder EmbedderConfig `koanf:"embedder"`
	VectorDB VectorDBConfig `koanf:"vector_db"`
	Retry    RetryConfig    `koanf:"retry"`
	TopK     int            `koanf:"top_k"     validate:"gt=0"`
	MinScore float64        `koanf:"min_score" validate:"gte=-1,lte=1"`
}

// EmbedderConfig selects the embedding model.
type EmbedderConfig struct {
	Provider      string `koanf:"provider"        validate:"oneof=googleai openai hash"`
	Model         string `koanf:"model"`
	APIKey        string `koanf:"api_key"`
	Dimension     int    `koanf:"dimension"       validate:"gt=0"`
	BatchSize     int    `koanf:"batch_size"      validate:"gte=0"`
	StripNewLines bool   `koanf:"strip_new_lines"`
	CacheSize     int    `koanf:"cache_size"      validate:"gte=0"`
}

// VectorDBConfig selects the vector store.
type VectorDBConfig struct {
	Provider    string `koanf:"provider"     validate:"oneof=memory pgvector redis"`
	DSN         string `koanf:"dsn"          validate:"required_unless=Provider memory"`
	Table       string `koanf:"table"`
	Key         string `koanf:"key"`
	EnsureIndex bool   `koanf:"ensure_index"`
}

// RetryConfig bounds retries of embedding and store calls.
type RetryConfig struct {
	Attempts  int           `koanf:"attempts"   validate:"gte=0"`
	BaseDelay time.Duration `koanf:"base_delay" validate:"gte=0"`
	MaxDelay  time.Duration `koanf:"max_delay"  validate:"gte=0"`
}

// ClassifierConfig configures the harmfulness tool. Without terms every
// product is reported as not harmful.
type ClassifierConfig struct {
	Terms []string `koanf:"terms"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level     string `koanf:"level"      validate:"oneof=debug info warn error"`
	Format    string `koanf:"format"     validate:"oneof=json text"`
	AddSource bool   `koanf:"add_source"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			Protocol:        "data",
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Model: ModelConfig{
			Provider:    "googleai",
			Name:        "gemini-1.5-flash-8b-latest",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Agent: AgentConfig{
			Instruction: "You are a helpful assistant. Check your knowledge base before answering any questions. " +
				"you can also do multi step reasoning.",
			MaxSteps:         10,
			MaxParallelTools: 4,
			Streaming:        true,
		},
		Knowledge: KnowledgeConfig{
			Embedder: EmbedderConfig{
				Provider:  "googleai",
				Model:     "text-embedding-004",
				Dimension: 768,
				BatchSize: 32,
				CacheSize: 512,
			},
			VectorDB: VectorDBConfig{
				Provider: "memory",
				Table:    "knowledge_chunks",
				Key:      "kbagent:knowledge",
			},
			Retry: RetryConfig{
				Attempts:  2,
				BaseDelay: 200 * time.Millisecond,
				MaxDelay:  2 * time.Second,
			},
			TopK:     4,
			MinScore: 0.5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
