package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Base URLs of the OpenAI-compatible chat completion endpoints.
const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	PerplexityBaseURL = "https://api.perplexity.ai"
	GroqBaseURL       = "https://api.groq.com/openai/v1"
)

// OpenAIConfig holds configuration for an OpenAI-compatible client.
type OpenAIConfig struct {
	Name    string // provider label used in errors and logs
	APIKey  string
	BaseURL string
	Model   string
	HTTP    HTTPOptions
}

// OpenAIClient implements Generator for the OpenAI chat completions API and
// the providers that mirror it (Perplexity, Groq).
type OpenAIClient struct {
	name      string
	apiKey    string
	baseURL   string
	model     string
	transport *jsonTransport
	logger    *zap.Logger
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenAIBaseURL
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	t := newJSONTransport(cfg.HTTP)
	return &OpenAIClient{
		name:      cfg.Name,
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		transport: t,
		logger:    t.opts.Logger,
	}
}

// Generate sends the prompt, with the optional system message first.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: %s: API key not configured", ErrGeneration, c.name)
	}

	start := time.Now()
	var messages []openAIMessage
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})

	body := openAIRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	data, err := c.transport.post(ctx, c.baseURL+"/chat/completions", headers, body)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrGeneration, c.name, err)
	}

	var resp openAIResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("%w: %s: parse response: %w", ErrGeneration, c.name, err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%w: %s: API error: %s", ErrGeneration, c.name, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s: no completion returned", ErrGeneration, c.name)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug("completion received",
		zap.String("provider", c.name), zap.String("model", c.model),
		zap.Duration("elapsed", time.Since(start)), zap.Int("response_len", len(text)))
	return text, nil
}
