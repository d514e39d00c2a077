package limiter

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Hosts paces requests per host with a token bucket for each.
type Hosts struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHosts allows rps requests per second to each host with the given burst.
// A non-positive rps disables pacing.
func NewHosts(rps float64, burst int) *Hosts {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &Hosts{rps: limit, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until a request to rawURL's host may start.
func (h *Hosts) Wait(ctx context.Context, rawURL string) error {
	return h.limiterFor(hostKey(rawURL)).Wait(ctx)
}

func (h *Hosts) limiterFor(key string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[key]
	if !ok {
		l = rate.NewLimiter(h.rps, h.burst)
		h.limiters[key] = l
	}
	return l
}

func hostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Host)
}
