package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LLMConfig describes a chat or embedding provider endpoint.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai | ollama | openrouter
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	KeyEnv      string  `yaml:"key_env"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	BatchSize   int     `yaml:"batch_size"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// APIKey returns the configured key, falling back to the environment.
func (c LLMConfig) APIKey() string {
	if c.Key != "" {
		return c.Key
	}
	if c.KeyEnv != "" {
		return os.Getenv(c.KeyEnv)
	}
	return ""
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

type RAGConfig struct {
	ChunkSize        int     `yaml:"chunk_size"`
	ChunkOverlap     int     `yaml:"chunk_overlap"`
	BoundaryLookback int     `yaml:"boundary_lookback"`
	TopK             int     `yaml:"top_k"`
	MinSimilarity    float64 `yaml:"min_similarity"`
	VectorStore      string  `yaml:"vector_store"` // memory | chromem | pgvector
	DBPath           string  `yaml:"db_path"`
	CollectionName   string  `yaml:"collection_name"`
	InMemory         bool    `yaml:"in_memory"`
	EmbeddingDim     int     `yaml:"embedding_dim"`
	EncryptionKey    string  `yaml:"encryption_key"`
	MaxFileSizeMB    int     `yaml:"max_file_size_mb"`
}

type ChatConfig struct {
	HistorySize      int `yaml:"history_size"`
	PromptHistory    int `yaml:"prompt_history"`
	MaxMessageLength int `yaml:"max_message_length"`
}

type RateLimitConfig struct {
	Scope           string `yaml:"scope"` // global | caller
	ChatPerMinute   int    `yaml:"chat_per_minute"`
	UploadPerMinute int    `yaml:"upload_per_minute"`
	WindowSecs      int    `yaml:"window_secs"`
}

func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSecs) * time.Second
}

type CacheConfig struct {
	TTLSecs    int `yaml:"ttl_secs"`
	MaxEntries int `yaml:"max_entries"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSecs) * time.Second
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // pgdriver | pq
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"`
}

type SessionConfig struct {
	Store string `yaml:"store"` // memory | bolt
	Path  string `yaml:"path"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	EmbedLLM  LLMConfig       `yaml:"embed_llm"`
	RAG       RAGConfig       `yaml:"rag"`
	Chat      ChatConfig      `yaml:"chat"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Database  DatabaseConfig  `yaml:"database"`
	Session   SessionConfig   `yaml:"session"`
	Log       LogConfig       `yaml:"log"`
}

// LoadConfig reads the YAML config at path over the defaults, so keys left
// out keep their default and explicit zero values (chunk_overlap: 0,
// temperature: 0) are kept. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config usable without a file: in-memory store and
// OpenAI-compatible providers keyed from OPENAI_API_KEY.
func Default() *Config {
	cfg := &Config{Log: LogConfig{Console: true}}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-3.5-turbo"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 500
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.LLM.KeyEnv == "" {
		cfg.LLM.KeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}

	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "openai"
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "text-embedding-ada-002"
	}
	if cfg.EmbedLLM.KeyEnv == "" {
		cfg.EmbedLLM.KeyEnv = "OPENAI_API_KEY"
	}
	if cfg.EmbedLLM.BatchSize == 0 {
		cfg.EmbedLLM.BatchSize = 100
	}
	if cfg.EmbedLLM.TimeoutSecs == 0 {
		cfg.EmbedLLM.TimeoutSecs = 30
	}

	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = 1000
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = 200
	}
	if cfg.RAG.BoundaryLookback == 0 {
		cfg.RAG.BoundaryLookback = 100
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 3
	}
	if cfg.RAG.MinSimilarity == 0 {
		cfg.RAG.MinSimilarity = 0.1
	}
	if cfg.RAG.VectorStore == "" {
		cfg.RAG.VectorStore = "memory"
	}
	if cfg.RAG.DBPath == "" {
		cfg.RAG.DBPath = "./chromemdb"
	}
	if cfg.RAG.CollectionName == "" {
		cfg.RAG.CollectionName = "documents"
	}
	if cfg.RAG.EmbeddingDim == 0 {
		cfg.RAG.EmbeddingDim = 1536
	}
	if cfg.RAG.MaxFileSizeMB == 0 {
		cfg.RAG.MaxFileSizeMB = 50
	}

	if cfg.Chat.HistorySize == 0 {
		cfg.Chat.HistorySize = 10
	}
	if cfg.Chat.PromptHistory == 0 {
		cfg.Chat.PromptHistory = 3
	}
	if cfg.Chat.MaxMessageLength == 0 {
		cfg.Chat.MaxMessageLength = 1000
	}

	if cfg.RateLimit.Scope == "" {
		cfg.RateLimit.Scope = "caller"
	}
	if cfg.RateLimit.ChatPerMinute == 0 {
		cfg.RateLimit.ChatPerMinute = 20
	}
	if cfg.RateLimit.UploadPerMinute == 0 {
		cfg.RateLimit.UploadPerMinute = 10
	}
	if cfg.RateLimit.WindowSecs == 0 {
		cfg.RateLimit.WindowSecs = 60
	}

	if cfg.Cache.TTLSecs == 0 {
		cfg.Cache.TTLSecs = 300
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 1000
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}

	if cfg.Session.Store == "" {
		cfg.Session.Store = "memory"
	}
	if cfg.Session.Path == "" {
		cfg.Session.Path = "./data/sessions.db"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
