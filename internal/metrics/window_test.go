package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindowRate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	sw := NewSlidingWindow(10*time.Second, 100)
	sw.now = func() time.Time { return now }

	assert.Zero(t, sw.Rate())

	for i := 0; i < 5; i++ {
		sw.Add(now.Unix())
	}
	assert.InDelta(t, 0.5, sw.Rate(), 1e-9)

	now = now.Add(30 * time.Second)
	assert.Zero(t, sw.Rate())
}

func TestSlidingWindowCapsSize(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	sw := NewSlidingWindow(time.Minute, 3)
	sw.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		sw.Add(now.Unix())
	}
	assert.Len(t, sw.events, 3)
}
