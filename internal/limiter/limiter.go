package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/Shugur-Network/aisbridge/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limit defines the budget applied to every key.
type Limit struct {
	Rate         rate.Limit    // sustained requests per second
	Burst        int           // requests allowed at once
	BanThreshold int           // rejections in a row before a ban, 0 disables bans
	BanDuration  time.Duration // how long a banned key is refused outright
}

// Decision is the outcome of Allow.
type Decision int

const (
	Allowed Decision = iota
	Throttled
	Banned
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Throttled:
		return "throttled"
	case Banned:
		return "banned"
	default:
		return "unknown"
	}
}

type entry struct {
	limiter     *rate.Limiter
	violations  int
	bannedUntil time.Time
	lastSeen    time.Time
}

// RateLimiter keeps one token bucket per key, typically a client IP.
type RateLimiter struct {
	limit   Limit
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
	logger  *zap.Logger
}

// NewRateLimiter creates a limiter applying limit to every key.
func NewRateLimiter(limit Limit, log *zap.Logger) *RateLimiter {
	if limit.Burst < 1 {
		limit.Burst = 1
	}
	return &RateLimiter{
		limit:   limit,
		entries: make(map[string]*entry),
		now:     time.Now,
		logger:  logger.OrNop(log),
	}
}

// Allow records a request for key and reports whether it may proceed.
// The empty key is never limited.
func (rl *RateLimiter) Allow(key string) Decision {
	if key == "" {
		return Allowed
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, ok := rl.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rl.limit.Rate, rl.limit.Burst)}
		rl.entries[key] = e
	}
	e.lastSeen = now

	if now.Before(e.bannedUntil) {
		return Banned
	}
	if e.limiter.AllowN(now, 1) {
		e.violations = 0
		return Allowed
	}

	e.violations++
	if rl.limit.BanThreshold > 0 && e.violations >= rl.limit.BanThreshold {
		e.violations = 0
		e.bannedUntil = now.Add(rl.limit.BanDuration)
		rl.logger.Warn("Rate limit exceeded, client banned",
			zap.String("key", key),
			zap.Duration("ban_duration", rl.limit.BanDuration))
		return Banned
	}

	rl.logger.Debug("Rate limit exceeded",
		zap.String("key", key),
		zap.Int("violations", e.violations))
	return Throttled
}

// Reset forgets everything about key, lifting any ban.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.entries, key)
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}

// Cleanup drops keys idle for longer than idle that are not banned and
// returns how many were removed.
func (rl *RateLimiter) Cleanup(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, e := range rl.entries {
		if now.Sub(e.lastSeen) > idle && !now.Before(e.bannedUntil) {
			delete(rl.entries, key)
			removed++
		}
	}
	return removed
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (rl *RateLimiter) RunCleanup(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Cleanup(idle); n > 0 {
				rl.logger.Debug("Removed idle rate limit entries", zap.Int("count", n))
			}
		}
	}
}
