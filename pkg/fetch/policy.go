package fetch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// Timer schedules the pause between attempts. Tests inject one that fires
// immediately and records the requested delays.
type Timer interface {
	After(d time.Duration) <-chan time.Time
}

// Policy describes how failed fetches are retried.
type Policy struct {
	// Timer overrides the wall-clock timer used between attempts.
	Timer Timer
	// Backoff returns the pause after the given failed attempt (1-based).
	Backoff func(attempt uint, err error) time.Duration
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts uint
	// MaxElapsed caps the total time spent on one URL, pauses included.
	MaxElapsed time.Duration
}

// DefaultPolicy makes three attempts within 30 seconds using Backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		MaxElapsed:  30 * time.Second,
		Backoff:     Backoff,
	}
}

// Backoff is the default pause schedule, keyed by failure class:
//
//	429            2s, 4s, 8s (capped at 8s)
//	403            1.5s
//	5xx            1s
//	other 4xx      500ms
//	network error  1s per failed attempt
func Backoff(attempt uint, err error) time.Duration {
	if attempt == 0 {
		attempt = 1
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return time.Duration(attempt) * time.Second
	}
	switch code := httpErr.StatusCode; {
	case code == http.StatusTooManyRequests:
		return min(2*time.Second<<(attempt-1), 8*time.Second)
	case code == http.StatusForbidden:
		return 1500 * time.Millisecond
	case code >= 500:
		return time.Second
	default:
		return 500 * time.Millisecond
	}
}

// retryUntilDone retries every HTTP status and network error, request
// timeouts included, until ctx itself is done.
func retryUntilDone(ctx context.Context) func(error) bool {
	return func(error) bool { return ctx.Err() == nil }
}

func (p Policy) backoff() func(uint, error) time.Duration {
	if p.Backoff == nil {
		return Backoff
	}
	return p.Backoff
}

func (p Policy) options(ctx context.Context, onRetry func(n uint, err error)) []retry.Option {
	backoff := p.backoff()
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		// n is the 1-based number of the attempt that just failed.
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			return backoff(n, err)
		}),
		retry.RetryIf(retryUntilDone(ctx)),
		retry.LastErrorOnly(true),
		retry.OnRetry(onRetry),
	}
	if p.Timer != nil {
		opts = append(opts, retry.WithTimer(p.Timer))
	}
	return opts
}
