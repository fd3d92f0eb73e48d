package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/meshroom/internal/domain"
	"github.com/dkeye/meshroom/internal/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func chat(text string) domain.ChatMessage {
	msg, _ := domain.NewChatMessage("r1", "alice", text, domain.DefaultMaxMessageLen, time.Now())
	return msg
}

func TestHistoryWriter(t *testing.T) {
	t.Run("should record submitted messages in order", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockHistory(ctrl)

		first, second := chat("one"), chat("two")
		done := make(chan struct{})
		gomock.InOrder(
			store.EXPECT().RecordMessage(gomock.Any(), first).Return(nil),
			store.EXPECT().RecordMessage(gomock.Any(), second).DoAndReturn(func(context.Context, domain.ChatMessage) error {
				close(done)
				return nil
			}),
		)

		ctx, cancel := context.WithCancel(context.Background())
		w := NewHistoryWriter(store, 8)
		w.Start(ctx)

		req.True(w.Submit(first))
		req.True(w.Submit(second))

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("messages were not recorded")
		}
		cancel()
		w.Wait()
	})

	t.Run("should drop instead of blocking when the queue is full", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockHistory(ctrl)
		store.EXPECT().RecordMessage(gomock.Any(), gomock.Any()).Times(0)

		w := NewHistoryWriter(store, 1)
		req.True(w.Submit(chat("one")))
		req.False(w.Submit(chat("two")))
	})

	t.Run("should drain queued messages on shutdown", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockHistory(ctrl)
		store.EXPECT().RecordMessage(gomock.Any(), gomock.Any()).Return(nil).Times(3)

		w := NewHistoryWriter(store, 4)
		for _, text := range []string{"a", "b", "c"} {
			w.Submit(chat(text))
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		w.Start(ctx)
		w.Wait()
	})

	t.Run("should keep going when the store fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockHistory(ctrl)
		store.EXPECT().RecordMessage(gomock.Any(), gomock.Any()).Return(errors.New("disk full")).Times(2)

		w := NewHistoryWriter(store, 4)
		w.Submit(chat("a"))
		w.Submit(chat("b"))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		w.Start(ctx)
		w.Wait()
	})
}
