package limiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type clock struct{ t time.Time }

func newClock() *clock { return &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func withClock(rl *RateLimiter, c *clock) *RateLimiter {
	rl.now = c.now
	return rl
}

func TestAllowBurstThenRefill(t *testing.T) {
	c := newClock()
	rl := withClock(NewRateLimiter(Limit{Rate: 1, Burst: 2}, zap.NewNop()), c)

	assert.Equal(t, Allowed, rl.Allow("10.0.0.1"))
	assert.Equal(t, Allowed, rl.Allow("10.0.0.1"))
	assert.Equal(t, Throttled, rl.Allow("10.0.0.1"))
	assert.Equal(t, Allowed, rl.Allow("10.0.0.2"), "keys are independent")

	c.advance(time.Second)
	assert.Equal(t, Allowed, rl.Allow("10.0.0.1"))
}

func TestEmptyKeyNeverLimited(t *testing.T) {
	rl := NewRateLimiter(Limit{Rate: rate.Every(time.Hour), Burst: 1}, nil)
	for i := 0; i < 10; i++ {
		assert.Equal(t, Allowed, rl.Allow(""))
	}
	assert.Zero(t, rl.Len())
}

func TestBanAfterRepeatedViolations(t *testing.T) {
	c := newClock()
	rl := withClock(NewRateLimiter(Limit{
		Rate:         rate.Every(time.Hour),
		Burst:        1,
		BanThreshold: 2,
		BanDuration:  time.Minute,
	}, zap.NewNop()), c)

	assert.Equal(t, Allowed, rl.Allow("a"))
	assert.Equal(t, Throttled, rl.Allow("a"))
	assert.Equal(t, Banned, rl.Allow("a"))
	assert.Equal(t, Banned, rl.Allow("a"))

	c.advance(30 * time.Second)
	assert.Equal(t, Banned, rl.Allow("a"))

	c.advance(time.Hour)
	assert.Equal(t, Allowed, rl.Allow("a"), "ban expired and bucket refilled")
}

func TestResetLiftsBan(t *testing.T) {
	c := newClock()
	rl := withClock(NewRateLimiter(Limit{Rate: rate.Every(time.Hour), Burst: 1, BanThreshold: 1, BanDuration: time.Hour}, nil), c)

	rl.Allow("a")
	assert.Equal(t, Banned, rl.Allow("a"))

	rl.Reset("a")
	assert.Equal(t, Allowed, rl.Allow("a"))
}

func TestCleanupKeepsActiveAndBannedKeys(t *testing.T) {
	c := newClock()
	rl := withClock(NewRateLimiter(Limit{Rate: rate.Every(time.Hour), Burst: 1, BanThreshold: 1, BanDuration: 24 * time.Hour}, nil), c)

	rl.Allow("idle")
	rl.Allow("banned")
	rl.Allow("banned")
	c.advance(2 * time.Hour)
	rl.Allow("active")

	assert.Equal(t, 1, rl.Cleanup(time.Hour))
	assert.Equal(t, 2, rl.Len())
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "throttled", Throttled.String())
	assert.Equal(t, "unknown", Decision(9).String())
}
