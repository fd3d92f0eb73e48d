package history

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/meshroom/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

const DefaultLimit = 100

// BadgerStore keeps chat history in badger.
// Keys are "msg:{room}:{unix_nanos_padded}:{uuid}" so a prefix scan is chronological;
// the room id is base64url encoded to keep ':' out of the prefix.
type BadgerStore struct {
	db    *badger.DB
	limit int
}

// OpenBadger opens (or creates) a badger database logging through zerolog.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{l: log.With().Str("module", "adapters.history.badger").Logger()})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", path, err)
	}
	return db, nil
}

func NewBadgerStore(db *badger.DB, limit int) *BadgerStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &BadgerStore{db: db, limit: limit}
}

func roomPrefix(room domain.RoomID) []byte {
	return []byte("msg:" + base64.RawURLEncoding.EncodeToString([]byte(room)) + ":")
}

func messageKey(msg domain.ChatMessage) []byte {
	return fmt.Appendf(roomPrefix(msg.RoomID), "%019d:%s", msg.Timestamp.UnixNano(), msg.ID)
}

func (s *BadgerStore) RecordMessage(ctx context.Context, msg domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := msgpack.Marshal(&msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg), value)
	})
}

// FetchHistory walks the room prefix backwards to collect the newest messages,
// then returns them oldest first.
func (s *BadgerStore) FetchHistory(ctx context.Context, room domain.RoomID) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := roomPrefix(room)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(slices.Clone(prefix), 0xff)); it.ValidForPrefix(prefix); it.Next() {
			if len(out) == s.limit {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			var msg domain.ChatMessage
			err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &msg)
			})
			if err != nil {
				return fmt.Errorf("decode message: %w", err)
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func (s *BadgerStore) RoomHasAnyHistory(ctx context.Context, room domain.RoomID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := roomPrefix(room)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Seek(prefix)
		found = it.ValidForPrefix(prefix)
		return nil
	})
	return found, err
}

type badgerLogger struct{ l zerolog.Logger }

func (b badgerLogger) Errorf(f string, v ...any)   { b.l.Error().Msgf(f, v...) }
func (b badgerLogger) Warningf(f string, v ...any) { b.l.Warn().Msgf(f, v...) }
func (b badgerLogger) Infof(f string, v ...any)    { b.l.Debug().Msgf(f, v...) }
func (b badgerLogger) Debugf(f string, v ...any)   { b.l.Trace().Msgf(f, v...) }
