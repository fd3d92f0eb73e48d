package core

import (
	"github.com/dkeye/meshroom/internal/domain"
)

// PublishResult reports delivery stats/backpressure to the relay.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	ID() domain.RoomID
	MemberCount() int
	Has(h domain.Handle) bool
	MembersSnapshot() []domain.Participant

	// AddMember reports false when the handle is already a member.
	AddMember(ms MemberSession) bool
	RemoveMember(h domain.Handle) (MemberSession, bool)
	Broadcast(from domain.Handle, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"roomId"`
	MemberCount int           `json:"member_count"`
}
