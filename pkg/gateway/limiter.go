package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterPool lazily creates one token bucket per client key. Entries
// are never evicted; client-IP cardinality is bounded in the
// deployments this gateway fronts.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &limiterPool{rps: rps, burst: burst}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*rate.Limiter)
	}
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = l
	return l
}

// Allow reports whether key may proceed under its bucket.
func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}
