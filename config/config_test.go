package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "data", cfg.Server.Protocol)
	assert.Equal(t, "googleai", cfg.Model.Provider)
	assert.Equal(t, "gemini-1.5-flash-8b-latest", cfg.Model.Name)
	assert.Equal(t, 10, cfg.Agent.MaxSteps)
	assert.Zero(t, cfg.Agent.ToolTimeout)
	assert.True(t, cfg.Agent.Streaming)
	assert.Equal(t, "memory", cfg.Knowledge.VectorDB.Provider)
	assert.Equal(t, 4, cfg.Knowledge.TopK)
	assert.InDelta(t, 0.5, cfg.Knowledge.MinScore, 1e-9)
	assert.Equal(t, 768, cfg.Knowledge.Embedder.Dimension)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("KBAGENT_SERVER_ADDR", ":9090")
	t.Setenv("KBAGENT_AGENT_MAX_STEPS", "3")
	t.Setenv("KBAGENT_AGENT_TOOL_TIMEOUT", "2s")
	t.Setenv("KBAGENT_KNOWLEDGE_VECTOR_DB_PROVIDER", "redis")
	t.Setenv("KBAGENT_KNOWLEDGE_VECTOR_DB_DSN", "redis://localhost:6379/0")
	t.Setenv("KBAGENT_KNOWLEDGE_EMBEDDER_PROVIDER", "hash")
	t.Setenv("KBAGENT_CLASSIFIER_TERMS", "bleach,ammonia")
	t.Setenv("KBAGENT_UNRELATED", "ignored")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Agent.MaxSteps)
	assert.Equal(t, 2*time.Second, cfg.Agent.ToolTimeout)
	assert.Equal(t, "redis", cfg.Knowledge.VectorDB.Provider)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Knowledge.VectorDB.DSN)
	assert.Equal(t, []string{"bleach", "ammonia"}, cfg.Classifier.Terms)
}

func TestLoad_CredentialFallback(t *testing.T) {
	t.Setenv("KBAGENT_MODEL_PROVIDER", "openai")
	t.Setenv("KBAGENT_MODEL_NAME", "gpt-4o-mini")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GOOGLE_API_KEY", "g-test")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Model.APIKey)
	assert.Equal(t, "g-test", cfg.Knowledge.Embedder.APIKey)

	t.Setenv("KBAGENT_MODEL_API_KEY", "explicit")

	cfg, err = Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.Model.APIKey)
}

func TestLoad_EnvFile(t *testing.T) {
	const key = "KBAGENT_LOG_LEVEL"

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=debug\n"), 0o600))

	// godotenv sets the variable for the process; restore it afterwards.
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))

	cfg, err := Load(context.Background(), func(o *LoadOptions) { o.EnvFile = path })
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)

	_, err = Load(context.Background(), func(o *LoadOptions) { o.EnvFile = filepath.Join(t.TempDir(), "missing.env") })
	assert.NoError(t, err, "a missing env file is not an error")
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(context.Background(), func(o *LoadOptions) {
		o.Overrides = map[string]any{"server.addr": ":7070", "agent.max_steps": 5}
	})
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Agent.MaxSteps)
}

func TestLoad_ValidationFailures(t *testing.T) {
	for name, env := range map[string]map[string]string{
		"unknown model provider": {"KBAGENT_MODEL_PROVIDER": "llamafile"},
		"negative steps":         {"KBAGENT_AGENT_MAX_STEPS": "-1"},
		"unbounded steps":        {"KBAGENT_AGENT_MAX_STEPS": "0"},
		"pgvector without dsn":   {"KBAGENT_KNOWLEDGE_VECTOR_DB_PROVIDER": "pgvector"},
		"bad log format":         {"KBAGENT_LOG_FORMAT": "xml"},
		"zero top k":             {"KBAGENT_KNOWLEDGE_TOP_K": "0"},
	} {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}

			_, err := Load(context.Background())
			assert.ErrorContains(t, err, "configuration validation failed")
		})
	}
}

func TestEnvMappings(t *testing.T) {
	m := EnvMappings()

	assert.Equal(t, "knowledge.vector_db.dsn", m["KBAGENT_KNOWLEDGE_VECTOR_DB_DSN"])
	assert.Equal(t, "agent.max_parallel_tools", m["KBAGENT_AGENT_MAX_PARALLEL_TOOLS"])
	assert.Equal(t, "classifier.terms", m["KBAGENT_CLASSIFIER_TERMS"])
	assert.NotContains(t, m, "KBAGENT_KNOWLEDGE")
}
