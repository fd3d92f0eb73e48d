package signal

import (
	"sync"
	"time"

	"github.com/dkeye/meshroom/internal/domain"
)

// RoomRateLimiter is a sliding-window limiter keyed by connection handle.
type RoomRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.Handle][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRoomRateLimiter(limit int, interval time.Duration) *RoomRateLimiter {
	return &RoomRateLimiter{
		history:  make(map[domain.Handle][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RoomRateLimiter) Allow(h domain.Handle) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[h]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[h] = fresh
		return false
	}

	rl.history[h] = append(fresh, now)
	return true
}

// Forget drops the window of a closed connection.
func (rl *RoomRateLimiter) Forget(h domain.Handle) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.history, h)
	rl.mu.Unlock()
}
