package core

import "github.com/dkeye/meshroom/internal/domain"

// MemberSession binds a participant to its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	Meta() domain.Participant
	Signal() SignalConnection
}
