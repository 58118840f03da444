package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter checks whether a request should be allowed based on
// the identity's service tier.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig holds the token bucket of a service tier. A zero
// RequestsPerMinute disables limiting for the tier.
type TierConfig struct {
	RequestsPerMinute int
	Burst             int
}

func (c TierConfig) limit() rate.Limit {
	return rate.Limit(float64(c.RequestsPerMinute) / 60)
}

func (c TierConfig) burst() int {
	if c.Burst > 0 {
		return c.Burst
	}
	return max(1, c.RequestsPerMinute/60)
}

// idleTTL is how long an unused bucket is kept before it is swept.
const idleTTL = 10 * time.Minute

// InProcessLimiter keeps one token bucket per subject and tier in memory.
type InProcessLimiter struct {
	tiers       map[string]TierConfig
	defaultTier TierConfig
	now         func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewInProcessLimiter creates a rate limiter with per-tier configuration.
// Identities whose tier is not listed use defaultTier.
func NewInProcessLimiter(tiers map[string]TierConfig, defaultTier TierConfig) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:       tiers,
		defaultTier: defaultTier,
		now:         time.Now,
		buckets:     make(map[string]*bucket),
	}
}

// Allow takes one token from the caller's bucket or returns
// ErrTooManyRequests.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.Tier()
	cfg, ok := l.tiers[tier]
	if !ok {
		cfg = l.defaultTier
	}
	if cfg.RequestsPerMinute <= 0 {
		return nil
	}

	key := identity.Subject + "\x00" + tier

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(cfg.limit(), cfg.burst())}
		l.buckets[key] = b
	}
	b.lastSeen = now

	if !b.limiter.AllowN(now, 1) {
		return ErrTooManyRequests
	}
	return nil
}

// sweep drops idle buckets at most once per idleTTL. Must be called with
// the lock held.
func (l *InProcessLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < idleTTL {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) >= idleTTL {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}
