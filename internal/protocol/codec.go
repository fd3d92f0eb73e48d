package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrBadPayload  = errors.New("bad payload")
)

// Envelope is the wire form of every message.
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func Encode(m Message) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	return json.Marshal(Envelope{Type: m.Kind(), Payload: payload})
}

// Decode parses an envelope into its typed variant.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	m, err := newVariant(env.Type)
	if err != nil {
		return nil, err
	}
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, env.Type, err)
		}
	}
	return deref(m), nil
}

func newVariant(k Kind) (any, error) {
	switch k {
	case KindJoin:
		return &Join{}, nil
	case KindLeave:
		return &Leave{}, nil
	case KindOffer:
		return &Offer{}, nil
	case KindAnswer:
		return &Answer{}, nil
	case KindICECandidate:
		return &ICECandidate{}, nil
	case KindChatMessage:
		return &ChatMessage{}, nil
	case KindPing:
		return &Ping{}, nil
	case KindWhoAmI:
		return &WhoAmI{}, nil
	case KindWelcome:
		return &Welcome{}, nil
	case KindExistingMembers:
		return &ExistingMembers{}, nil
	case KindMemberJoined:
		return &MemberJoined{}, nil
	case KindMemberLeft:
		return &MemberLeft{}, nil
	case KindHistory:
		return &History{}, nil
	case KindRoomClosed:
		return &RoomClosed{}, nil
	case KindPong:
		return &Pong{}, nil
	case KindError:
		return &Error{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, k)
	}
}

func deref(v any) Message {
	switch m := v.(type) {
	case *Join:
		return *m
	case *Leave:
		return *m
	case *Offer:
		return *m
	case *Answer:
		return *m
	case *ICECandidate:
		return *m
	case *ChatMessage:
		return *m
	case *Ping:
		return *m
	case *WhoAmI:
		return *m
	case *Welcome:
		return *m
	case *ExistingMembers:
		return *m
	case *MemberJoined:
		return *m
	case *MemberLeft:
		return *m
	case *History:
		return *m
	case *RoomClosed:
		return *m
	case *Pong:
		return *m
	case *Error:
		return *m
	}
	panic(fmt.Sprintf("protocol: unhandled variant %T", v))
}
