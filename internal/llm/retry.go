package llm

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"
)

const (
	maxRetries     = 2
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
	}
}

// shouldRetry determines if a status code is transient
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// calculateBackoff calculates exponential backoff duration
func calculateBackoff(attempt int, config *RetryConfig) time.Duration {
	backoff := float64(config.InitialBackoff) * math.Pow(2, float64(attempt))

	if backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}

	return time.Duration(backoff)
}

// retryWithBackoff wraps an HTTP request with retry logic. Non-retryable
// responses are returned as-is for the caller to inspect.
func (c *Client) retryWithBackoff(ctx context.Context, reqFunc func() (*http.Response, error)) (*http.Response, error) {
	config := c.retry
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		resp, err := reqFunc()

		if err == nil && resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		} else {
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)

			if !shouldRetry(resp.StatusCode) || attempt == config.MaxRetries {
				return resp, nil
			}

			resp.Body.Close()
		}

		if attempt == config.MaxRetries {
			break
		}

		backoff := calculateBackoff(attempt, config)
		c.logger.Warn().
			Int("attempt", attempt+1).
			Int("max_retries", config.MaxRetries).
			Dur("backoff", backoff).
			Err(lastErr).
			Msg("Request failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", config.MaxRetries, lastErr)
}
