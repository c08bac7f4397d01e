// Package models contains shared data models used across the booktrans codebase.
package models

import "context"

// Translator is the interface every LLM integration implements.
// Never call a specific provider directly; inject this interface instead.
type Translator interface {
	// Translate performs a single translation request for one chunk of text.
	// Implementations classify failures with the ai/apierr taxonomy.
	Translate(ctx context.Context, req TranslationRequest) (string, error)
	// Name returns the provider identifier (e.g., "openai", "ollama").
	Name() string
	// Model returns the model used for requests.
	Model() string
}

// TranslationRequest is the input to one provider call.
type TranslationRequest struct {
	Text           string
	TargetLanguage string
}

// SystemPrompt builds the instruction shared by all chat style providers.
func SystemPrompt(targetLanguage string) string {
	return "You are a professional literary translator. Translate the user's text to " +
		targetLanguage + " while preserving paragraph breaks, dialogue punctuation and tone. " +
		"Return only the translation with no commentary."
}
