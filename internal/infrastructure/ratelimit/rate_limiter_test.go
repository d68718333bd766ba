package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestAllowConsumesAndRefills(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	rl := newRateLimiter(map[string]Policy{
		ActionSendMessage: {Burst: 2, Refill: 1, Interval: 6 * time.Second},
	}, clock.now)

	ok, _ := rl.Allow("b1", ActionSendMessage)
	assert.True(t, ok)
	ok, _ = rl.Allow("b1", ActionSendMessage)
	assert.True(t, ok)

	ok, wait := rl.Allow("b1", ActionSendMessage)
	assert.False(t, ok)
	assert.Equal(t, 6*time.Second, wait)

	// Other users have their own bucket.
	ok, _ = rl.Allow("s1", ActionSendMessage)
	assert.True(t, ok)

	clock.t = clock.t.Add(7 * time.Second)
	ok, _ = rl.Allow("b1", ActionSendMessage)
	assert.True(t, ok)
	assert.Equal(t, 0, rl.Remaining("b1", ActionSendMessage))
}

func TestUnknownActionUsesFallback(t *testing.T) {
	rl := NewRateLimiter(nil)
	for i := 0; i < 20; i++ {
		ok, _ := rl.Allow("ip", "something_else")
		assert.True(t, ok)
	}
	ok, _ := rl.Allow("ip", "something_else")
	assert.False(t, ok)
	assert.Equal(t, -1, rl.Remaining("ip", "never_used"))
}

func TestCleanupDropsIdleBuckets(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	rl := newRateLimiter(nil, clock.now)
	rl.Allow("b1", ActionSendMessage)

	clock.t = clock.t.Add(2 * time.Hour)
	rl.Cleanup(time.Hour)
	assert.Equal(t, -1, rl.Remaining("b1", ActionSendMessage))
}
