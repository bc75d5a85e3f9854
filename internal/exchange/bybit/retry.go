package bybit

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/zeedohq/reversal-bot/internal/exchange"
)

const (
	retryMaxAttempts   = 3
	retryInitialDelay  = time.Second
	retryMaxDelay      = 30 * time.Second
	retryBackoffFactor = 2.0
)

// retry runs fn up to retryMaxAttempts times with exponential backoff and
// jitter. Only transient server errors are retried; rate limits are not,
// those bubble up so the engine can back off the whole cycle.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == retryMaxAttempts-1 || !isTransient(err) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(attempt)):
		}
	}
	return lastErr
}

func isTransient(err error) bool {
	if errors.Is(err, exchange.ErrRateLimited) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 500, 502, 503, 504:
			return true
		}
		return false
	}
	// Transport-level failures (timeouts, resets) are worth another try.
	return true
}

func backoffDelay(attempt int) time.Duration {
	delay := time.Duration(float64(retryInitialDelay) * math.Pow(retryBackoffFactor, float64(attempt)))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	jitter := time.Duration(float64(delay) * 0.1 * (2*randFloat() - 1))
	return delay + jitter
}

func randFloat() float64 {
	return float64(time.Now().UnixNano()%1000) / 1000.0
}
