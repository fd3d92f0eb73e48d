package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/meshroom/internal/core"
	"github.com/dkeye/meshroom/internal/domain"
	"github.com/rs/zerolog/log"
)

const recordTimeout = 5 * time.Second

// HistoryWriter persists chat messages off the relay path.
// Submit never blocks: when the queue is full the message is dropped and logged.
type HistoryWriter struct {
	store core.History
	queue chan domain.ChatMessage
	wg    sync.WaitGroup
}

func NewHistoryWriter(store core.History, size int) *HistoryWriter {
	if size <= 0 {
		size = 1
	}
	return &HistoryWriter{store: store, queue: make(chan domain.ChatMessage, size)}
}

// Start runs the writer until ctx is done, then drains what is queued.
func (w *HistoryWriter) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				w.drain()
				return
			case msg := <-w.queue:
				w.record(msg)
			}
		}
	}()
}

func (w *HistoryWriter) Submit(msg domain.ChatMessage) bool {
	select {
	case w.queue <- msg:
		return true
	default:
		log.Warn().Str("module", "app.history").Str("room", string(msg.RoomID)).Msg("history queue full, message not persisted")
		return false
	}
}

// Wait blocks until the writer goroutine has exited.
func (w *HistoryWriter) Wait() { w.wg.Wait() }

func (w *HistoryWriter) drain() {
	for {
		select {
		case msg := <-w.queue:
			w.record(msg)
		default:
			return
		}
	}
}

func (w *HistoryWriter) record(msg domain.ChatMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := w.store.RecordMessage(ctx, msg); err != nil {
		log.Error().Err(err).Str("module", "app.history").Str("room", string(msg.RoomID)).Msg("record message")
	}
}
