package provider

import (
	"errors"
	"fmt"
)

// RateLimitError signals the provider refused the call for quota reasons.
// Callers treat it as fatal for the whole batch rather than retrying it.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited: %s", e.Provider, e.Message)
}

// ProviderError covers every other call failure. Retryable marks errors
// that a fresh attempt may recover from (5xx, network, timeouts).
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// IsRateLimit reports whether err is a quota failure.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// IsRetryable reports whether a fresh attempt could plausibly succeed.
// Rate limits are deliberately not retryable here.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
