package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKickPolicy(t *testing.T) {
	require.Equal(t, KickMember, KickPolicy{}.OnBackPressure("r1", session("A", "alice")))
}

func TestThresholdPolicy(t *testing.T) {
	t.Run("should kick after the configured number of drops", func(t *testing.T) {
		req := require.New(t)
		p := NewThresholdPolicy(3)
		a := session("A", "alice")

		req.Equal(DropFrame, p.OnBackPressure("r1", a))
		req.Equal(DropFrame, p.OnBackPressure("r1", a))
		req.Equal(KickMember, p.OnBackPressure("r1", a))
	})

	t.Run("should count members separately and reset on forget", func(t *testing.T) {
		req := require.New(t)
		p := NewThresholdPolicy(2)
		a, b := session("A", "alice"), session("B", "bob")

		req.Equal(DropFrame, p.OnBackPressure("r1", a))
		req.Equal(DropFrame, p.OnBackPressure("r1", b))
		p.Forget("A")
		req.Equal(DropFrame, p.OnBackPressure("r1", a))
		req.Equal(KickMember, p.OnBackPressure("r1", b))
	})
}
