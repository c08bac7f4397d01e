package ai

import (
	"errors"

	"github.com/kiranshivaraju/booktrans/internal/ai/apierr"
)

// Classification sentinels. Providers live in subpackages and cannot import
// this package, so the definitions sit in apierr.
var (
	ErrRateLimited = apierr.ErrRateLimited
	ErrTransient   = apierr.ErrTransient
	ErrFatal       = apierr.ErrFatal
)

var (
	ErrRetriesExhausted = errors.New("ai retries exhausted")
	ErrEmptyTranslation = errors.New("ai provider returned an empty translation")
)
