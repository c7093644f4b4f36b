package marketdata

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiter hands out one token bucket per upstream host so a burst of
// DuckDuckGo queries does not starve Wikipedia.
type hostLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func newHostLimiter(perSecond float64, burst int) *hostLimiter {
	if burst <= 0 {
		burst = 3
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &hostLimiter{buckets: map[string]*rate.Limiter{}, limit: limit, burst: burst}
}

func (l *hostLimiter) Wait(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	return l.bucket(u.Host).Wait(ctx)
}

func (l *hostLimiter) bucket(host string) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.buckets[host]
	l.mu.RUnlock()
	if ok {
		return b
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[host]; ok {
		return b
	}
	b = rate.NewLimiter(l.limit, l.burst)
	l.buckets[host] = b
	return b
}
