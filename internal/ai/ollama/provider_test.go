package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/booktrans/internal/ai/apierr"
	"github.com/kiranshivaraju/booktrans/internal/ai/ollama"
	"github.com/kiranshivaraju/booktrans/internal/config"
	"github.com/kiranshivaraju/booktrans/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, false, body["stream"])
		assert.Equal(t, "llama3", body["model"])

		w.Write([]byte(`{"message":{"role":"assistant","content":"Bonjour"},"done":true}`))
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL + "/", Model: "llama3"})
	out, err := p.Translate(context.Background(), models.TranslationRequest{Text: "Hello", TargetLanguage: "French"})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", out)
}

func TestTranslate_ModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'llama9' not found"}`))
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama9"})
	_, err := p.Translate(context.Background(), models.TranslationRequest{Text: "Hello", TargetLanguage: "French"})
	assert.ErrorIs(t, err, apierr.ErrFatal)
	assert.Contains(t, err.Error(), "not found")
}
