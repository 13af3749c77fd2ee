package llmservice

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docchat/internal/config"
	"docchat/internal/models"
)

const defaultOpenRouterBase = "https://openrouter.ai/api"

// StreamClient talks to an OpenAI compatible /v1/chat/completions endpoint
// with stream=true and joins the deltas.
type StreamClient struct {
	baseURL     string
	key         string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

func NewStreamClient(cfg config.LLMConfig) *StreamClient {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOpenRouterBase
	}
	return &StreamClient{
		baseURL:     strings.TrimSuffix(base, "/"),
		key:         cfg.APIKey(),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      HTTPClient(cfg),
	}
}

type streamRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *StreamClient) Complete(ctx context.Context, messages []Message) (string, error) {
	jsonData, err := json.Marshal(streamRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      true,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	if c.key != "" {
		key := c.key
		if !strings.HasPrefix(key, "Bearer ") {
			key = "Bearer " + key
		}
		req.Header.Set("Authorization", key)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", Classify("chat stream", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(resp.Body)
		return "", RateLimited("chat stream", parseRetryAfter(resp.Header.Get("Retry-After")),
			fmt.Errorf("request failed: %d, %s", resp.StatusCode, string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", models.NewProviderError("chat stream", fmt.Errorf("request failed: %d, %s", resp.StatusCode, string(body)))
	}

	var response strings.Builder
	done := false
	reader := bufio.NewReader(resp.Body)
	for !done {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", Classify("chat stream", err)
		}

		line = strings.TrimSpace(line)
		if line == "data: [DONE]" {
			done = true
			break
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var chunk streamChunk
			if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr == nil &&
				len(chunk.Choices) > 0 {
				response.WriteString(chunk.Choices[0].Delta.Content)
			}
		}
		if err == io.EOF {
			break
		}
	}
	// a body cut short keeps only part of the answer
	if !done {
		return "", models.NewProviderError("chat stream", errors.New("stream ended before [DONE]"))
	}

	return strings.TrimSpace(response.String()), nil
}

// parseRetryAfter reads the delay-seconds or HTTP-date form of the header.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
