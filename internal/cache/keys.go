package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// TranslationKey identifies a memoized chunk translation. The text is
// hashed so keys stay short regardless of chunk size.
func TranslationKey(provider, model, targetLanguage, text string) string {
	h := sha256.New()
	for _, part := range []string{provider, model, targetLanguage, text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("translation:%s:%s", provider, hex.EncodeToString(h.Sum(nil)))
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
