package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoomRateLimiter(t *testing.T) {
	t.Run("should allow up to the limit within the window", func(t *testing.T) {
		req := require.New(t)
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		rl := NewRoomRateLimiter(2, time.Second)
		rl.now = func() time.Time { return now }

		req.True(rl.Allow("A"))
		req.True(rl.Allow("A"))
		req.False(rl.Allow("A"))
		req.True(rl.Allow("B"))

		now = now.Add(1100 * time.Millisecond)
		req.True(rl.Allow("A"))
	})

	t.Run("should start over after forget", func(t *testing.T) {
		req := require.New(t)
		rl := NewRoomRateLimiter(1, time.Minute)
		req.True(rl.Allow("A"))
		req.False(rl.Allow("A"))
		rl.Forget("A")
		req.True(rl.Allow("A"))
	})

	t.Run("should allow everything when disabled", func(t *testing.T) {
		req := require.New(t)
		var nilLimiter *RoomRateLimiter
		req.True(nilLimiter.Allow("A"))
		nilLimiter.Forget("A")

		off := NewRoomRateLimiter(0, time.Second)
		for range 10 {
			req.True(off.Allow("A"))
		}
	})
}
