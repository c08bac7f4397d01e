package mock

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kiranshivaraju/booktrans/internal/ai/apierr"
	"github.com/kiranshivaraju/booktrans/pkg/models"
)

// MockProvider satisfies models.Translator for testing.
type MockProvider struct {
	Name_         string
	Model_        string
	TranslateFunc func(ctx context.Context, req models.TranslationRequest) (string, error)

	calls atomic.Int64
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Model() string { return m.Model_ }

// Calls returns how many times Translate ran.
func (m *MockProvider) Calls() int { return int(m.calls.Load()) }

func (m *MockProvider) Translate(ctx context.Context, req models.TranslationRequest) (string, error) {
	m.calls.Add(1)
	if m.TranslateFunc != nil {
		return m.TranslateFunc(ctx, req)
	}
	return req.Text, nil
}

// NewMockProvider returns a MockProvider that tags each chunk with the
// target language, e.g. "[Spanish] Hello".
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_:  "mock",
		Model_: "mock-v1",
		TranslateFunc: func(_ context.Context, req models.TranslationRequest) (string, error) {
			return "[" + req.TargetLanguage + "] " + strings.TrimSpace(req.Text), nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_:  "mock-failing",
		Model_: "mock-v1",
		TranslateFunc: func(_ context.Context, _ models.TranslationRequest) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_:  "mock-timeout",
		Model_: "mock-v1",
		TranslateFunc: func(ctx context.Context, _ models.TranslationRequest) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
}

// NewRateLimitedProvider rate limits the first n calls, then behaves like
// NewMockProvider. retryAfter is reported on every rejection.
func NewRateLimitedProvider(n int, retryAfter time.Duration) *MockProvider {
	ok := NewMockProvider()
	var seen atomic.Int64
	m := &MockProvider{Name_: "mock-ratelimited", Model_: "mock-v1"}
	m.TranslateFunc = func(ctx context.Context, req models.TranslationRequest) (string, error) {
		if seen.Add(1) <= int64(n) {
			return "", &apierr.ProviderError{
				Kind:       apierr.ErrRateLimited,
				Provider:   m.Name_,
				StatusCode: 429,
				RetryAfter: retryAfter,
				Message:    "slow down",
			}
		}
		return ok.TranslateFunc(ctx, req)
	}
	return m
}

// NewSequenceProvider returns the given errors in order on successive calls
// and succeeds once they are used up.
func NewSequenceProvider(errs ...error) *MockProvider {
	ok := NewMockProvider()
	var seen atomic.Int64
	return &MockProvider{
		Name_:  "mock-sequence",
		Model_: "mock-v1",
		TranslateFunc: func(ctx context.Context, req models.TranslationRequest) (string, error) {
			i := seen.Add(1) - 1
			if int(i) < len(errs) && errs[i] != nil {
				return "", errs[i]
			}
			return ok.TranslateFunc(ctx, req)
		},
	}
}

// Compile-time check that MockProvider implements Translator.
var _ models.Translator = (*MockProvider)(nil)
