package domain

import "github.com/google/uuid"

// Handle is the opaque address of one signaling connection.
type Handle string

func NewHandle() Handle { return Handle(uuid.NewString()) }

// Participant is one connection's membership meta for a room.
// No transport or lifecycle logic here.
type Participant struct {
	Handle   Handle   `json:"handle"`
	Identity Identity `json:"identity"`
}
