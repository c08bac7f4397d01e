package ollama

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

// Provider implements models.Translator using a local Ollama server.
type Provider struct {
	cfg    config.OllamaConfig
	client *http.Client
}

func NewProvider(cfg config.OllamaConfig) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string  { return "ollama" }
func (p *Provider) Model() string { return p.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error"`
}

func (p *Provider) Translate(ctx context.Context, req models.TranslationRequest) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: models.SystemPrompt(req.TargetLanguage)},
			{Role: "user", Content: req.Text},
		},
		Options: map[string]any{"temperature": 0.3},
	})
	if err != nil {
		return "", apierr.Fatal(p.Name(), "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", apierr.Fatal(p.Name(), "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", apierr.FromTransport(p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apierr.FromResponse(p.Name(), resp, apierr.Excerpt(resp.Body))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apierr.FromDecode(p.Name(), err)
	}
	if out.Error != "" {
		return "", apierr.Fatal(p.Name(), out.Error, nil)
	}
	return strings.TrimSpace(out.Message.Content), nil
}

var _ models.Translator = (*Provider)(nil)
