package auth

import (
	"context"
	"sync"
	"time"
)

// Quota reports the state of a rate-limit bucket after a request was
// counted. Remaining and Reset feed the X-RateLimit response headers.
type Quota struct {
	Remaining int
	Reset     time.Time
}

// RateLimiter checks whether a request keyed by caller and tier should
// be allowed. The chat route counts each request against two buckets,
// the user ID with tier "user" and the client address with tier "ip".
type RateLimiter interface {
	Allow(ctx context.Context, key, tier string) (Quota, error)
}

// TierConfig holds rate limit settings for a tier.
type TierConfig struct {
	RequestsPerMinute int
}

// InProcessLimiter is a sliding-window rate limiter that tracks request
// counts per key in memory.
type InProcessLimiter struct {
	tiers      map[string]TierConfig
	defaultRPM int
	mu         sync.Mutex
	counters   map[string]*counter
}

type counter struct {
	count    int
	windowAt time.Time
}

// NewInProcessLimiter creates a rate limiter with per-tier configuration.
func NewInProcessLimiter(tiers map[string]TierConfig, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		counters:   make(map[string]*counter),
	}
}

// Allow counts the request against the key's window and checks the
// tier's limit. Fails open: a tier with no positive limit allows
// everything.
func (l *InProcessLimiter) Allow(_ context.Context, key, tier string) (Quota, error) {
	if tier == "" {
		tier = "default"
	}

	rpm := l.defaultRPM
	if tc, ok := l.tiers[tier]; ok {
		rpm = tc.RequestsPerMinute
	}

	if rpm <= 0 {
		return Quota{Remaining: 1, Reset: time.Now().Add(time.Minute)}, nil
	}

	bucket := key + ":" + tier

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c, ok := l.counters[bucket]
	if !ok || now.Sub(c.windowAt) >= time.Minute {
		l.counters[bucket] = &counter{count: 1, windowAt: now}
		return Quota{Remaining: rpm - 1, Reset: now.Add(time.Minute)}, nil
	}

	c.count++
	reset := c.windowAt.Add(time.Minute)
	if c.count > rpm {
		return Quota{Remaining: 0, Reset: reset}, ErrTooManyRequests
	}

	return Quota{Remaining: rpm - c.count, Reset: reset}, nil
}
