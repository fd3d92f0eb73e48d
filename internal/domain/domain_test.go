package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewIdentity(t *testing.T) {
	t.Run("should trim surrounding spaces", func(t *testing.T) {
		req := require.New(t)
		id, err := NewIdentity("  alice ")
		req.NoError(err)
		req.Equal(Identity("alice"), id)
	})

	t.Run("should reject blank names", func(t *testing.T) {
		_, err := NewIdentity(" \t ")
		require.ErrorIs(t, err, ErrIdentityEmpty)
	})

	t.Run("should count runes not bytes", func(t *testing.T) {
		req := require.New(t)
		_, err := NewIdentity(strings.Repeat("é", MaxIdentityLen))
		req.NoError(err)
		_, err = NewIdentity(strings.Repeat("é", MaxIdentityLen+1))
		req.ErrorIs(err, ErrIdentityTooLong)
	})
}

func TestParseRoomID(t *testing.T) {
	req := require.New(t)

	id, err := ParseRoomID(" r1 ")
	req.NoError(err)
	req.Equal(RoomID("r1"), id)

	_, err = ParseRoomID("")
	req.ErrorIs(err, ErrRoomIDEmpty)

	_, err = ParseRoomID(strings.Repeat("x", MaxRoomIDLen+1))
	req.ErrorIs(err, ErrRoomIDTooLong)

	generated := NewRoomID()
	req.Len(string(generated), 10)
	req.NotEqual(generated, NewRoomID())
}

func TestNewChatMessage(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))

	t.Run("should build a trimmed utc message", func(t *testing.T) {
		req := require.New(t)
		msg, err := NewChatMessage("r1", "alice", "  hi  ", DefaultMaxMessageLen, at)
		req.NoError(err)
		req.Equal("hi", msg.Text)
		req.Equal(RoomID("r1"), msg.RoomID)
		req.Equal(Identity("alice"), msg.Sender)
		req.Equal(time.UTC, msg.Timestamp.Location())
		req.True(msg.Timestamp.Equal(at))
		req.NotZero(msg.ID)
	})

	t.Run("should reject empty text", func(t *testing.T) {
		_, err := NewChatMessage("r1", "alice", "   ", DefaultMaxMessageLen, at)
		require.ErrorIs(t, err, ErrMessageEmpty)
	})

	t.Run("should enforce the length limit", func(t *testing.T) {
		req := require.New(t)
		_, err := NewChatMessage("r1", "alice", strings.Repeat("a", 11), 10, at)
		req.ErrorIs(err, ErrMessageTooLong)
		_, err = NewChatMessage("r1", "alice", strings.Repeat("a", 10), 10, at)
		req.NoError(err)
	})
}
