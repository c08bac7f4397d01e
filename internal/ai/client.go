package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/booktrans/internal/ai/apierr"
	"github.com/kiranshivaraju/booktrans/internal/cache"
	"github.com/kiranshivaraju/booktrans/pkg/models"
	"golang.org/x/time/rate"
)

const defaultRequestTimeout = 120 * time.Second

// Client translates chunks through a provider with per-call timeouts,
// retries, optional throttling and an optional memo cache. A Client is safe
// for concurrent use and keeps no per-call state.
type Client struct {
	provider models.Translator
	policy   RetryPolicy
	timeout  time.Duration
	limiter  *rate.Limiter
	cache    cache.Cache
	cacheTTL time.Duration
}

type ClientOption func(*Client)

func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) { c.policy = p }
}

func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRequestsPerMinute throttles calls across every job sharing the client.
// Zero disables throttling.
func WithRequestsPerMinute(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(float64(n)/60), max(1, n/10))
		}
	}
}

// WithCache memoizes successful translations. Cache failures are logged and
// never fail a translation.
func WithCache(ca cache.Cache, ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cache = ca
		c.cacheTTL = ttl
	}
}

func NewClient(provider models.Translator, opts ...ClientOption) *Client {
	c := &Client{
		provider: provider,
		policy:   DefaultRetryPolicy(),
		timeout:  defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the underlying provider name.
func (c *Client) Provider() string { return c.provider.Name() }

// Translate returns text translated to targetLanguage. Whitespace-only text
// is returned unchanged without calling the provider. notify may be nil.
func (c *Client) Translate(ctx context.Context, text, targetLanguage string, notify Notifier) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	key := cache.TranslationKey(c.provider.Name(), c.provider.Model(), targetLanguage, text)
	if out, ok := c.cached(ctx, key); ok {
		return out, nil
	}

	var out string
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		res, err := c.call(ctx, text, targetLanguage)
		if err != nil {
			return err
		}
		out = res
		return nil
	}, notify)
	if err != nil {
		return "", fmt.Errorf("translate via %s: %w", c.provider.Name(), err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, []byte(out), c.cacheTTL); err != nil {
			slog.Warn("translation cache write failed", "error", err)
		}
	}
	return out, nil
}

// call performs exactly one bounded provider request.
func (c *Client) call(ctx context.Context, text, targetLanguage string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", apierr.Fatal(c.provider.Name(), "waiting for request slot", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.provider.Translate(callCtx, models.TranslationRequest{
		Text:           text,
		TargetLanguage: targetLanguage,
	})
	if err != nil {
		// The per-call deadline is ours, not the caller's: worth another try.
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !apierr.Retryable(err) {
			return "", &apierr.ProviderError{
				Kind:     apierr.ErrTransient,
				Provider: c.provider.Name(),
				Message:  fmt.Sprintf("no response within %s", c.timeout),
				Err:      err,
			}
		}
		return "", err
	}
	if strings.TrimSpace(res) == "" {
		return "", apierr.Fatal(c.provider.Name(), "invalid response", ErrEmptyTranslation)
	}
	return res, nil
}

func (c *Client) cached(ctx context.Context, key string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	b, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("translation cache read failed", "error", err)
		return "", false
	}
	return string(b), ok
}
