// Package protocol defines the closed set of signaling messages exchanged
// between participants and the relay, and their JSON envelope.
package protocol

import (
	"time"

	"github.com/dkeye/meshroom/internal/domain"
)

type Kind string

const (
	KindJoin            Kind = "join"
	KindLeave           Kind = "leave"
	KindOffer           Kind = "offer"
	KindAnswer          Kind = "answer"
	KindICECandidate    Kind = "ice-candidate"
	KindChatMessage     Kind = "chat-message"
	KindPing            Kind = "ping"
	KindWhoAmI          Kind = "whoami"
	KindWelcome         Kind = "welcome"
	KindExistingMembers Kind = "existing-members"
	KindMemberJoined    Kind = "member-joined"
	KindMemberLeft      Kind = "member-left"
	KindHistory         Kind = "history-messages"
	KindRoomClosed      Kind = "room-closed"
	KindPong            Kind = "pong"
	KindError           Kind = "error"
)

// Message is one of the variants below. The set is closed.
type Message interface {
	Kind() Kind
	sealed()
}

type Join struct {
	RoomID domain.RoomID `json:"roomId"`
}

type Leave struct {
	RoomID domain.RoomID `json:"roomId"`
}

// Offer travels client→relay with Target set and relay→client with From and Identity set.
type Offer struct {
	Target   domain.Handle   `json:"target,omitempty"`
	From     domain.Handle   `json:"from,omitempty"`
	Identity domain.Identity `json:"identity,omitempty"`
	SDP      string          `json:"sdp"`
}

type Answer struct {
	Target   domain.Handle   `json:"target,omitempty"`
	From     domain.Handle   `json:"from,omitempty"`
	Identity domain.Identity `json:"identity,omitempty"`
	SDP      string          `json:"sdp"`
}

// Candidate mirrors the browser RTCIceCandidateInit shape.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type ICECandidate struct {
	Target    domain.Handle `json:"target,omitempty"`
	From      domain.Handle `json:"from,omitempty"`
	Candidate Candidate     `json:"candidate"`
}

// ChatMessage carries Text from a client; the relay fills Sender and Timestamp.
type ChatMessage struct {
	RoomID    domain.RoomID   `json:"roomId"`
	Sender    domain.Identity `json:"sender,omitempty"`
	Text      string          `json:"text"`
	Timestamp time.Time       `json:"timestamp,omitzero"`
}

type Ping struct{}

type WhoAmI struct {
	Handle   domain.Handle   `json:"handle,omitempty"`
	Identity domain.Identity `json:"identity,omitempty"`
	RoomID   domain.RoomID   `json:"roomId,omitempty"`
}

type Welcome struct {
	Handle   domain.Handle   `json:"handle"`
	Identity domain.Identity `json:"identity,omitempty"`
}

type ExistingMembers struct {
	RoomID  domain.RoomID        `json:"roomId"`
	Members []domain.Participant `json:"members"`
}

type MemberJoined struct {
	domain.Participant
}

type MemberLeft struct {
	domain.Participant
}

type History struct {
	RoomID   domain.RoomID        `json:"roomId"`
	Messages []domain.ChatMessage `json:"messages"`
}

type RoomClosed struct {
	RoomID domain.RoomID `json:"roomId"`
}

type Pong struct{}

type ErrorCode string

const (
	CodeBadPayload       ErrorCode = "bad_payload"
	CodeUnknownType      ErrorCode = "unknown_type"
	CodeIdentityRequired ErrorCode = "identity_required"
	CodeNotInRoom        ErrorCode = "not_in_room"
	CodeRateLimited      ErrorCode = "rate_limited"
	CodeInvalidMessage   ErrorCode = "invalid_message"
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

func (Join) Kind() Kind            { return KindJoin }
func (Leave) Kind() Kind           { return KindLeave }
func (Offer) Kind() Kind           { return KindOffer }
func (Answer) Kind() Kind          { return KindAnswer }
func (ICECandidate) Kind() Kind    { return KindICECandidate }
func (ChatMessage) Kind() Kind     { return KindChatMessage }
func (Ping) Kind() Kind            { return KindPing }
func (WhoAmI) Kind() Kind          { return KindWhoAmI }
func (Welcome) Kind() Kind         { return KindWelcome }
func (ExistingMembers) Kind() Kind { return KindExistingMembers }
func (MemberJoined) Kind() Kind    { return KindMemberJoined }
func (MemberLeft) Kind() Kind      { return KindMemberLeft }
func (History) Kind() Kind         { return KindHistory }
func (RoomClosed) Kind() Kind      { return KindRoomClosed }
func (Pong) Kind() Kind            { return KindPong }
func (Error) Kind() Kind           { return KindError }

func (Join) sealed()            {}
func (Leave) sealed()           {}
func (Offer) sealed()           {}
func (Answer) sealed()          {}
func (ICECandidate) sealed()    {}
func (ChatMessage) sealed()     {}
func (Ping) sealed()            {}
func (WhoAmI) sealed()          {}
func (Welcome) sealed()         {}
func (ExistingMembers) sealed() {}
func (MemberJoined) sealed()    {}
func (MemberLeft) sealed()      {}
func (History) sealed()         {}
func (RoomClosed) sealed()      {}
func (Pong) sealed()            {}
func (Error) sealed()           {}
