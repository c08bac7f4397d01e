// Package openai talks to the chat completions API and anything that
// speaks its wire format.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/booktrans/internal/ai/apierr"
	"github.com/kiranshivaraju/booktrans/internal/config"
	"github.com/kiranshivaraju/booktrans/pkg/models"
)

// Provider implements models.Translator using OpenAI chat completions.
type Provider struct {
	name   string
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewProvider(cfg config.OpenAIConfig) *Provider {
	return New("openai", cfg)
}

// New builds a provider for an OpenAI compatible endpoint under a custom name.
func New(name string, cfg config.OpenAIConfig) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{name: name, cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string  { return p.name }
func (p *Provider) Model() string { return p.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

func (p *Provider) Translate(ctx context.Context, req models.TranslationRequest) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: models.SystemPrompt(req.TargetLanguage)},
			{Role: "user", Content: req.Text},
		},
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	})
	if err != nil {
		return "", apierr.Fatal(p.name, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", apierr.Fatal(p.name, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", apierr.FromTransport(p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apierr.FromResponse(p.name, resp, apierr.Excerpt(resp.Body))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apierr.FromDecode(p.name, err)
	}
	if len(out.Choices) == 0 {
		return "", apierr.Fatal(p.name, "response has no choices", nil)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

var _ models.Translator = (*Provider)(nil)
