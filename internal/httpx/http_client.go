package httpx

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"
)

const defaultExternalHTTPTimeout = 30 * time.Second

var externalHTTPClient = &http.Client{
	Timeout: defaultExternalHTTPTimeout,
}

// Client returns the shared client used for outbound calls.
func Client() *http.Client {
	return externalHTTPClient
}

// ConfigureExternalHTTPClient sets the shared client timeout. Non-positive
// values restore the default.
func ConfigureExternalHTTPClient(timeoutSeconds int) time.Duration {
	timeout := defaultExternalHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	externalHTTPClient.Timeout = timeout
	return timeout
}

// Backoff returns the wait before the given retry attempt (1-based).
type Backoff func(attempt int) time.Duration

// ExponentialBackoff waits base^attempt seconds.
func ExponentialBackoff(base float64) Backoff {
	return func(attempt int) time.Duration {
		return time.Duration(math.Pow(base, float64(attempt))) * time.Second
	}
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Retry calls fn up to attempts times, sleeping backoff(n) after the n-th
// failure. It stops early on a Permanent error or when ctx is done and
// returns the last error seen.
func Retry(ctx context.Context, attempts int, backoff Backoff, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == attempts || backoff == nil {
			continue
		}
		timer := time.NewTimer(backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
