package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate limit buckets.
const (
	// BucketAuth counts failed authentication attempts.
	BucketAuth = "auth"
	// BucketTrigger counts manual run requests.
	BucketTrigger = "trigger"
)

// RateLimitConfig holds configurable rate limits.
type RateLimitConfig struct {
	AuthFailuresPerMin int `yaml:"auth_failures_per_min"`
	TriggersPerMin     int `yaml:"triggers_per_min"`
}

func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		AuthFailuresPerMin: 10,
		TriggersPerMin:     30,
	}
}

// pruneThreshold is the number of keyed buckets above which drained ones
// are dropped before a new key is added.
const pruneThreshold = 1024

// RateLimiter implements sliding window rate limiting.
// Each bucket tracks timestamps of recent events within its window. A bucket
// can be split per key (a client address, say); keyed buckets share the
// kind's window and limit.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	keyed   map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
// Zero-value fields in cfg are replaced with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	if cfg.AuthFailuresPerMin <= 0 {
		cfg.AuthFailuresPerMin = defaults.AuthFailuresPerMin
	}
	if cfg.TriggersPerMin <= 0 {
		cfg.TriggersPerMin = defaults.TriggersPerMin
	}

	return &RateLimiter{
		now:   time.Now,
		keyed: make(map[string]*bucket),
		buckets: map[string]*bucket{
			BucketAuth:    {window: time.Minute, limit: cfg.AuthFailuresPerMin},
			BucketTrigger: {window: time.Minute, limit: cfg.TriggersPerMin},
		},
	}
}

// Allow records an event in the named bucket. It returns ErrRateLimited,
// without recording, once the bucket is full. Unknown buckets are unlimited.
func (rl *RateLimiter) Allow(kind string) error {
	return rl.AllowFor(kind, "")
}

// AllowFor is Allow on the bucket of kind kept for key alone.
func (rl *RateLimiter) AllowFor(kind, key string) error {
	if rl == nil {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b := rl.lookup(kind, key, now, true)
	if b == nil {
		return nil
	}
	b.evict(now)

	if len(b.events) >= b.limit {
		return ErrRateLimited
	}

	b.events = append(b.events, now)
	return nil
}

// Exhausted reports whether the named bucket is currently full, without
// recording an event.
func (rl *RateLimiter) Exhausted(kind string) bool {
	return rl.ExhaustedFor(kind, "")
}

// ExhaustedFor is Exhausted on the bucket of kind kept for key alone.
func (rl *RateLimiter) ExhaustedFor(kind, key string) bool {
	if rl == nil {
		return false
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b := rl.lookup(kind, key, now, false)
	if b == nil {
		return false
	}
	b.evict(now)
	return len(b.events) >= b.limit
}

// lookup returns the bucket for kind and key, or nil when kind is unknown or
// the keyed bucket does not exist and create is false. Must hold rl.mu.
func (rl *RateLimiter) lookup(kind, key string, now time.Time, create bool) *bucket {
	shared, ok := rl.buckets[kind]
	if !ok || key == "" {
		return shared
	}

	id := kind + "\x00" + key
	if b, ok := rl.keyed[id]; ok {
		return b
	}
	if !create {
		return nil
	}
	if len(rl.keyed) >= pruneThreshold {
		for k, b := range rl.keyed {
			if b.evict(now); len(b.events) == 0 {
				delete(rl.keyed, k)
			}
		}
	}
	b := &bucket{window: shared.window, limit: shared.limit}
	rl.keyed[id] = b
	return b
}

// evict removes events outside the sliding window.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
