package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/berth-dev/scout/internal/config"
)

// New builds the Generator selected by cfg.LLM.Provider, wrapped in a
// circuit breaker when llm.failure_threshold is positive.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("provider", cfg.LLM.Provider))

	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	httpOpts := HTTPOptions{
		Timeout:    timeout,
		MaxRetries: 3,
		Backoff:    time.Second,
		Logger:     logger,
	}

	var gen Generator
	switch cfg.LLM.Provider {
	case config.ProviderOpenAI, config.ProviderPerplexity, config.ProviderGroq:
		gen = NewOpenAIClient(OpenAIConfig{
			Name:    cfg.LLM.Provider,
			APIKey:  cfg.APIKey(),
			BaseURL: baseURLFor(cfg),
			Model:   cfg.ModelName(),
			HTTP:    httpOpts,
		})
	case config.ProviderAnthropic:
		gen = NewAnthropicClient(AnthropicConfig{
			APIKey:  cfg.APIKey(),
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.ModelName(),
			HTTP:    httpOpts,
		})
	case config.ProviderGemini:
		client, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:  cfg.APIKey(),
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.ModelName(),
			Timeout: timeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		gen = client
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.LLM.Provider)
	}

	if cfg.LLM.FailureThreshold > 0 {
		gen = WithBreaker(gen, NewCircuitBreaker(cfg.LLM.FailureThreshold), logger)
	}
	return gen, nil
}

func baseURLFor(cfg *config.Config) string {
	if cfg.LLM.BaseURL != "" {
		return cfg.LLM.BaseURL
	}
	switch cfg.LLM.Provider {
	case config.ProviderPerplexity:
		return PerplexityBaseURL
	case config.ProviderGroq:
		return GroqBaseURL
	default:
		return OpenAIBaseURL
	}
}
