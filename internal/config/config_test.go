package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 100, cfg.RAG.BoundaryLookback)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.InDelta(t, 0.1, cfg.RAG.MinSimilarity, 1e-9)
	assert.Equal(t, "memory", cfg.RAG.VectorStore)
	assert.Equal(t, 10, cfg.Chat.HistorySize)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.Window())
	assert.True(t, cfg.Log.Console)
}

func TestLoadConfig_OverridesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
llm:
  provider: ollama
  base_url: http://localhost:11434
  model: llama3
rag:
  chunk_size: 500
  vector_store: chromem
rate_limit:
  chat_per_minute: 5
log:
  level: debug
  console: false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, "chromem", cfg.RAG.VectorStore)
	assert.Equal(t, 5, cfg.RateLimit.ChatPerMinute)
	assert.Equal(t, 10, cfg.RateLimit.UploadPerMinute)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.Console)
}

func TestLoadConfig_ExplicitZeroValuesKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
llm:
  temperature: 0
rag:
  chunk_overlap: 0
  boundary_lookback: 0
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Zero(t, cfg.LLM.Temperature)
	assert.Zero(t, cfg.RAG.ChunkOverlap)
	assert.Zero(t, cfg.RAG.BoundaryLookback)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 500, cfg.LLM.MaxTokens)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rag: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLLMConfig_APIKey(t *testing.T) {
	t.Setenv("DOCCHAT_TEST_KEY", "from-env")

	assert.Equal(t, "direct", LLMConfig{Key: "direct", KeyEnv: "DOCCHAT_TEST_KEY"}.APIKey())
	assert.Equal(t, "from-env", LLMConfig{KeyEnv: "DOCCHAT_TEST_KEY"}.APIKey())
	assert.Empty(t, LLMConfig{}.APIKey())
}
