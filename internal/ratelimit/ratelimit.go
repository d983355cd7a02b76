// Package ratelimit gates probe firing per probe spec (spec §4.4 step
// 1, "Optionally check a per-probe rate limit (token bucket keyed by
// probe spec)").
//
// Ground: internal/race/detector/sampler.go's Sampler, whose
// atomic-counter-and-modulo idiom inspired using a single dedicated
// limiter per probe spec; the token-bucket mechanics themselves come
// from golang.org/x/time/rate rather than a hand-rolled counter, since
// the ecosystem already has a goroutine-safe implementation the sample
// package's detector never needed (it only ever downsampled, never
// throttled a wall-clock rate).
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Registry holds one token bucket per probe spec, created lazily on
// first use and never removed (probe specs are a small, bounded set
// fixed at compile time).
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perSec   int
}

// NewRegistry returns a Registry whose limiters allow perSec events per
// second with a burst of perSec events. perSec <= 0 disables rate limiting
// entirely: Allow always returns true and no limiter is constructed.
func NewRegistry(perSec int) *Registry {
	return &Registry{limiters: make(map[string]*rate.Limiter), perSec: perSec}
}

// Allow reports whether probeSpec's bucket has a token available,
// consuming one if so (spec §4.4 step 1).
func (reg *Registry) Allow(probeSpec string) bool {
	if reg == nil || reg.perSec <= 0 {
		return true
	}
	return reg.limiterFor(probeSpec).Allow()
}

func (reg *Registry) limiterFor(probeSpec string) *rate.Limiter {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	lim, ok := reg.limiters[probeSpec]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(reg.perSec), reg.perSec)
		reg.limiters[probeSpec] = lim
	}
	return lim
}
