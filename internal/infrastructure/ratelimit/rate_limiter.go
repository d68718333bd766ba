package ratelimit

import (
	"sync"
	"time"
)

const (
	ActionSendMessage  = "send_message"
	ActionStartSession = "start_session"
	ActionREST         = "rest"
)

// Policy describes a bucket: Burst tokens, refilled by Refill every Interval.
type Policy struct {
	Burst    int
	Refill   int
	Interval time.Duration
}

// TokenBucket represents a token bucket for rate limiting
type TokenBucket struct {
	tokens     int
	policy     Policy
	lastRefill time.Time
	lastUsed   time.Time
	mutex      sync.Mutex
}

func newTokenBucket(policy Policy, now time.Time) *TokenBucket {
	return &TokenBucket{
		tokens:     policy.Burst,
		policy:     policy,
		lastRefill: now,
		lastUsed:   now,
	}
}

// allow consumes a token if one is available. Otherwise it reports how long
// until the next refill.
func (tb *TokenBucket) allow(now time.Time) (bool, time.Duration) {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.lastUsed = now
	if tb.policy.Interval > 0 {
		intervals := int(now.Sub(tb.lastRefill) / tb.policy.Interval)
		if intervals > 0 {
			tb.tokens += intervals * tb.policy.Refill
			if tb.tokens > tb.policy.Burst {
				tb.tokens = tb.policy.Burst
			}
			tb.lastRefill = tb.lastRefill.Add(time.Duration(intervals) * tb.policy.Interval)
		}
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true, 0
	}
	return false, tb.lastRefill.Add(tb.policy.Interval).Sub(now)
}

func (tb *TokenBucket) remaining() int {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()
	return tb.tokens
}

// RateLimiter keeps one bucket per (key, action).
type RateLimiter struct {
	buckets  map[string]*TokenBucket
	policies map[string]Policy
	fallback Policy
	now      func() time.Time
	mutex    sync.RWMutex
}

// DefaultPolicies allows 10 chat messages per minute and 5 new sessions per hour.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		ActionSendMessage:  {Burst: 10, Refill: 1, Interval: 6 * time.Second},
		ActionStartSession: {Burst: 5, Refill: 1, Interval: 12 * time.Minute},
		ActionREST:         {Burst: 60, Refill: 1, Interval: time.Second},
	}
}

func NewRateLimiter(policies map[string]Policy) *RateLimiter {
	return newRateLimiter(policies, time.Now)
}

func newRateLimiter(policies map[string]Policy, now func() time.Time) *RateLimiter {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &RateLimiter{
		buckets:  make(map[string]*TokenBucket),
		policies: policies,
		fallback: Policy{Burst: 20, Refill: 1, Interval: 3 * time.Second},
		now:      now,
	}
}

// Allow checks if an action is allowed for key (a user id or client IP).
func (rl *RateLimiter) Allow(key, action string) (bool, time.Duration) {
	bucketKey := key + ":" + action
	now := rl.now()

	rl.mutex.RLock()
	bucket, exists := rl.buckets[bucketKey]
	rl.mutex.RUnlock()

	if !exists {
		rl.mutex.Lock()
		if bucket, exists = rl.buckets[bucketKey]; !exists {
			policy, ok := rl.policies[action]
			if !ok {
				policy = rl.fallback
			}
			bucket = newTokenBucket(policy, now)
			rl.buckets[bucketKey] = bucket
		}
		rl.mutex.Unlock()
	}

	return bucket.allow(now)
}

// Remaining returns the tokens left for key and action, or -1 when no bucket exists yet.
func (rl *RateLimiter) Remaining(key, action string) int {
	rl.mutex.RLock()
	bucket, exists := rl.buckets[key+":"+action]
	rl.mutex.RUnlock()
	if !exists {
		return -1
	}
	return bucket.remaining()
}

// Cleanup removes buckets idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	for key, bucket := range rl.buckets {
		bucket.mutex.Lock()
		idle := now.Sub(bucket.lastUsed)
		bucket.mutex.Unlock()
		if idle > maxIdle {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanupRoutine runs Cleanup every interval until done is closed.
func (rl *RateLimiter) StartCleanupRoutine(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			case <-done:
				return
			}
		}
	}()
}
