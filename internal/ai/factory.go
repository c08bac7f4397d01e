package ai

import (
	"fmt"

	"github.com/kiranshivaraju/booktrans/internal/ai/anthropic"
	"github.com/kiranshivaraju/booktrans/internal/ai/ollama"
	"github.com/kiranshivaraju/booktrans/internal/ai/openai"
	"github.com/kiranshivaraju/booktrans/internal/ai/vllm"
	"github.com/kiranshivaraju/booktrans/internal/cache"
	"github.com/kiranshivaraju/booktrans/internal/config"
	"github.com/kiranshivaraju/booktrans/pkg/models"
)

// NewProvider constructs the appropriate provider based on config.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.Translator, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic", cfg.Provider)
	}
}

// NewClientFromConfig wires a provider with the retry, timeout, throttle
// and cache settings from cfg. ca may be nil.
func NewClientFromConfig(provider models.Translator, cfg config.AIConfig, ca cache.Cache) *Client {
	opts := []ClientOption{
		WithRetryPolicy(RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
			Jitter:      0.1,
		}),
		WithRequestTimeout(cfg.RequestTimeout),
		WithRequestsPerMinute(cfg.RequestsPerMinute),
	}
	if ca != nil && cfg.CacheTTL > 0 {
		opts = append(opts, WithCache(ca, cfg.CacheTTL))
	}
	return NewClient(provider, opts...)
}
