//go:generate go run go.uber.org/mock/mockgen -source=history_iface.go -destination=../mocks/mock_history.go -package=mocks
package core

import (
	"context"

	"github.com/dkeye/meshroom/internal/domain"
)

// History is the chat message store the relay reports to and reads from.
type History interface {
	RecordMessage(ctx context.Context, msg domain.ChatMessage) error
	// FetchHistory returns the most recent messages of a room, oldest first.
	FetchHistory(ctx context.Context, room domain.RoomID) ([]domain.ChatMessage, error)
	RoomHasAnyHistory(ctx context.Context, room domain.RoomID) (bool, error)
}
