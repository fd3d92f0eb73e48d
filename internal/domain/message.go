package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const DefaultMaxMessageLen = 4000

var (
	ErrMessageEmpty   = errors.New("message empty")
	ErrMessageTooLong = errors.New("message too long")
)

// ChatMessage is owned by the history store; the relay only forwards it.
type ChatMessage struct {
	ID        uuid.UUID `json:"id" msgpack:"id"`
	RoomID    RoomID    `json:"roomId" msgpack:"room"`
	Sender    Identity  `json:"sender" msgpack:"sender"`
	Text      string    `json:"text" msgpack:"text"`
	Timestamp time.Time `json:"timestamp" msgpack:"ts"`
}

// NewChatMessage trims text and checks it against maxLen runes.
func NewChatMessage(room RoomID, sender Identity, text string, maxLen int, at time.Time) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, ErrMessageEmpty
	}
	if maxLen > 0 && utf8.RuneCountInString(text) > maxLen {
		return ChatMessage{}, ErrMessageTooLong
	}
	return ChatMessage{
		ID:        uuid.New(),
		RoomID:    room,
		Sender:    sender,
		Text:      text,
		Timestamp: at.UTC(),
	}, nil
}
