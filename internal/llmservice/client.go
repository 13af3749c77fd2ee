package llmservice

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"docchat/internal/config"
	"docchat/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatModel produces one completion for a role-tagged conversation.
// Implementations return typed *models.Error values.
type ChatModel interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// HTTPClient applies the configured request timeout.
func HTTPClient(cfg config.LLMConfig) *http.Client {
	return &http.Client{Timeout: cfg.Timeout()}
}

// NewChatModel picks the client for cfg.Provider.
func NewChatModel(cfg config.LLMConfig) (ChatModel, error) {
	log.Debug().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("Creating chat model")

	switch cfg.Provider {
	case "openrouter":
		return NewStreamClient(cfg), nil
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
			ollama.WithHTTPClient(HTTPClient(cfg)),
		)
		if err != nil {
			return nil, fmt.Errorf("init ollama: %w", err)
		}
		return NewLangchainModel(llm, cfg.MaxTokens, cfg.Temperature), nil
	case "openai", "":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.APIKey(), "Bearer ")),
			openai.WithModel(cfg.Model),
			openai.WithHTTPClient(HTTPClient(cfg)),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("init openai: %w", err)
		}
		return NewLangchainModel(llm, cfg.MaxTokens, cfg.Temperature), nil
	default:
		return nil, models.NewValidationError("chat model", fmt.Sprintf("unknown provider %q", cfg.Provider))
	}
}

// LangchainModel adapts any langchaingo llms.Model.
type LangchainModel struct {
	llm         llms.Model
	maxTokens   int
	temperature float64
}

func NewLangchainModel(llm llms.Model, maxTokens int, temperature float64) *LangchainModel {
	return &LangchainModel{llm: llm, maxTokens: maxTokens, temperature: temperature}
}

func (m *LangchainModel) Complete(ctx context.Context, messages []Message) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		content = append(content, llms.TextParts(chatMessageType(msg.Role), msg.Content))
	}

	var opts []llms.CallOption
	if m.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(m.maxTokens))
	}
	opts = append(opts, llms.WithTemperature(m.temperature))

	res, err := m.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", Classify("generate content", err)
	}
	if len(res.Choices) == 0 {
		return "", models.NewProviderError("generate content", fmt.Errorf("no choices returned"))
	}
	return strings.TrimSpace(res.Choices[0].Content), nil
}

func chatMessageType(r Role) llms.ChatMessageType {
	switch r {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
