package fetch

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiter enforces a request rate per host. It is safe for concurrent use
// by every participant of a batch.
type hostLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
}

func newHostLimiter(limit rate.Limit, burst int) *hostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &hostLimiter{limit: limit, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until a request to rawURL's host is allowed.
func (h *hostLimiter) Wait(ctx context.Context, rawURL string) error {
	if h.limit == rate.Inf {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil
	}

	h.mu.Lock()
	l, ok := h.limiters[u.Host]
	if !ok {
		l = rate.NewLimiter(h.limit, h.burst)
		h.limiters[u.Host] = l
	}
	h.mu.Unlock()

	return l.Wait(ctx)
}
