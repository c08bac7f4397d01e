// Package apierr classifies failures from LLM providers.
//
// Providers wrap every failure in a *ProviderError whose Kind is one of the
// sentinel errors below, so callers can decide on retries with errors.Is.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrRateLimited means the provider asked us to slow down.
	ErrRateLimited = errors.New("ai provider rate limited")
	// ErrTransient covers network failures, timeouts and 5xx responses.
	ErrTransient = errors.New("ai provider transient failure")
	// ErrFatal covers failures a retry cannot fix.
	ErrFatal = errors.New("ai provider fatal failure")
)

// ProviderError carries the classification and HTTP details of a failed call.
type ProviderError struct {
	Kind       error
	Provider   string
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches the kind sentinel.
func (e *ProviderError) Is(target error) bool { return target == e.Kind }

func (e *ProviderError) Unwrap() error { return e.Err }

// Kind returns the sentinel class of err. Unclassified errors are fatal.
func Kind(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRateLimited):
		return ErrRateLimited
	case errors.Is(err, ErrTransient):
		return ErrTransient
	default:
		return ErrFatal
	}
}

// Retryable reports whether a retry might succeed.
func Retryable(err error) bool {
	k := Kind(err)
	return k == ErrRateLimited || k == ErrTransient
}

// RetryAfter extracts the provider suggested wait, if any.
func RetryAfter(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// FromResponse classifies a non-2xx HTTP response. body is a short excerpt
// of the response for the error message.
func FromResponse(provider string, resp *http.Response, body string) *ProviderError {
	pe := &ProviderError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(body),
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		pe.Kind = ErrRateLimited
		pe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode >= 500:
		pe.Kind = ErrTransient
	default:
		pe.Kind = ErrFatal
	}
	return pe
}

// FromTransport classifies an error returned by http.Client.Do.
// A cancelled parent context is fatal since nobody is waiting any more.
func FromTransport(provider string, err error) *ProviderError {
	pe := &ProviderError{Provider: provider, Err: err, Kind: ErrTransient}
	if errors.Is(err, context.Canceled) {
		pe.Kind = ErrFatal
		return pe
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		pe.Message = "request timed out"
	}
	return pe
}

// FromDecode classifies a failure to read a 2xx response body. Broken
// connections are transient, malformed payloads are not.
func FromDecode(provider string, err error) *ProviderError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &netErr) {
		return FromTransport(provider, err)
	}
	return Fatal(provider, "malformed response", err)
}

// Fatal wraps err as a non retryable provider failure.
func Fatal(provider, message string, err error) *ProviderError {
	return &ProviderError{Kind: ErrFatal, Provider: provider, Message: message, Err: err}
}

// Excerpt reads at most 1 KiB of an error response body for messages.
func Excerpt(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 1024))
	return strings.TrimSpace(string(b))
}

// parseRetryAfter accepts delta seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
