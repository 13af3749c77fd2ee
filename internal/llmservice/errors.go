package llmservice

import (
	"context"
	"errors"
	"strings"
	"time"

	"docchat/internal/models"
)

// Classify turns a provider error into a typed *models.Error. It is the only
// place that inspects provider error text.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *models.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewProviderError(op, err)
	}
	if isRateLimit(err.Error()) {
		return models.NewRateLimitError(op, "provider rate limit", models.DefaultRetryAfter, err)
	}
	return models.NewProviderError(op, err)
}

// RateLimited builds the typed error for an HTTP 429 answer.
func RateLimited(op string, retryAfter time.Duration, err error) error {
	if retryAfter <= 0 {
		retryAfter = models.DefaultRetryAfter
	}
	return models.NewRateLimitError(op, "provider rate limit", retryAfter, err)
}

func isRateLimit(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{"429", "rate limit", "rate_limit", "ratelimit", "too many requests", "quota"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
