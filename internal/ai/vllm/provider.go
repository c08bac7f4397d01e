// Package vllm targets a self-hosted vLLM server through its OpenAI
// compatible API.
package vllm

import (
	"strings"

	"github.com/kiranshivaraju/booktrans/internal/ai/openai"
	"github.com/kiranshivaraju/booktrans/internal/config"
)

const (
	temperature = 0.3
	maxTokens   = 2000
)

func NewProvider(cfg config.VLLMConfig) *openai.Provider {
	return openai.New("vllm", config.OpenAIConfig{
		Model:       cfg.Model,
		BaseURL:     strings.TrimRight(cfg.BaseURL, "/") + "/v1",
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
}
