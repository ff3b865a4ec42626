package authkit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const minimumLimiterIdle = time.Minute

// QuotaChecker decides whether userID may make another metered call.
type QuotaChecker interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitQuota grants each user an independent token bucket.
// A bucket idle long enough to refill completely is dropped, so the map holds only recently active users.
type RateLimitQuota struct {
	mutex     sync.Mutex
	limiters  map[string]*userLimiter
	limit     rate.Limit
	burst     int
	idleAfter time.Duration
	lastSweep time.Time
	clock     Clock
}

// NewRateLimitQuota allows perMinute calls per user with bursts of up to burst calls.
func NewRateLimitQuota(perMinute int, burst int) *RateLimitQuota {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	idleAfter := time.Duration(burst) * time.Minute / time.Duration(perMinute)
	if idleAfter < minimumLimiterIdle {
		idleAfter = minimumLimiterIdle
	}
	return &RateLimitQuota{
		limiters:  make(map[string]*userLimiter),
		limit:     rate.Limit(float64(perMinute) / 60.0),
		burst:     burst,
		idleAfter: idleAfter,
		clock:     NewSystemClock(),
	}
}

func (quota *RateLimitQuota) Allow(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	quota.mutex.Lock()
	defer quota.mutex.Unlock()

	now := quota.clock.Now()
	quota.sweepLocked(now)
	entry, ok := quota.limiters[userID]
	if !ok {
		entry = &userLimiter{limiter: rate.NewLimiter(quota.limit, quota.burst)}
		quota.limiters[userID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1), nil
}

func (quota *RateLimitQuota) sweepLocked(now time.Time) {
	if now.Sub(quota.lastSweep) < quota.idleAfter {
		return
	}
	quota.lastSweep = now
	for userID, entry := range quota.limiters {
		if now.Sub(entry.lastSeen) >= quota.idleAfter {
			delete(quota.limiters, userID)
		}
	}
}

// trackedUsers reports how many buckets are held.
func (quota *RateLimitQuota) trackedUsers() int {
	quota.mutex.Lock()
	defer quota.mutex.Unlock()
	return len(quota.limiters)
}
