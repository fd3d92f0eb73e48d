package core

import (
	"errors"
	"testing"

	"github.com/dkeye/meshroom/internal/domain"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	frames []Frame
	full   bool
	closed bool
}

func (c *recordingConn) TrySend(f Frame) error {
	if c.full {
		return errors.New("full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *recordingConn) Close() { c.closed = true }

func member(h, id string, conn SignalConnection) MemberSession {
	return NewMemberSession(domain.Participant{Handle: domain.Handle(h), Identity: domain.Identity(id)}, conn)
}

func TestRoom_Membership(t *testing.T) {
	t.Run("should keep join order and ignore duplicates", func(t *testing.T) {
		req := require.New(t)
		room := NewRoomService("r1")

		req.True(room.AddMember(member("h1", "alice", &recordingConn{})))
		req.True(room.AddMember(member("h2", "bob", &recordingConn{})))
		req.False(room.AddMember(member("h1", "alice", &recordingConn{})))
		req.True(room.AddMember(member("h3", "carol", &recordingConn{})))

		req.Equal(3, room.MemberCount())
		req.Equal([]domain.Participant{
			{Handle: "h1", Identity: "alice"},
			{Handle: "h2", Identity: "bob"},
			{Handle: "h3", Identity: "carol"},
		}, room.MembersSnapshot())
	})

	t.Run("should remove a member and keep the rest ordered", func(t *testing.T) {
		req := require.New(t)
		room := NewRoomService("r1")
		room.AddMember(member("h1", "alice", &recordingConn{}))
		room.AddMember(member("h2", "bob", &recordingConn{}))
		room.AddMember(member("h3", "carol", &recordingConn{}))

		ms, ok := room.RemoveMember("h2")
		req.True(ok)
		req.Equal(domain.Handle("h2"), ms.Meta().Handle)
		req.False(room.Has("h2"))

		_, ok = room.RemoveMember("h2")
		req.False(ok)

		req.Equal([]domain.Handle{"h1", "h3"}, handles(room.MembersSnapshot()))
	})
}

func TestRoom_Broadcast(t *testing.T) {
	req := require.New(t)
	room := NewRoomService("r1")
	a, b, c := &recordingConn{}, &recordingConn{}, &recordingConn{full: true}
	room.AddMember(member("h1", "alice", a))
	room.AddMember(member("h2", "bob", b))
	room.AddMember(member("h3", "carol", c))

	res := room.Broadcast("h1", Frame("hello"))

	req.Equal(1, res.SendTo)
	req.Len(res.Dropped, 1)
	req.Equal(domain.Handle("h3"), res.Dropped[0].Meta().Handle)
	req.Empty(a.frames)
	req.Equal([]Frame{Frame("hello")}, b.frames)
	req.False(c.closed)
}

func handles(ps []domain.Participant) []domain.Handle {
	out := make([]domain.Handle, len(ps))
	for i, p := range ps {
		out[i] = p.Handle
	}
	return out
}
