package repositories

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var _ contract.IConversationStore = (*BadgerConversationStore)(nil)

const (
	messagesCollection = "messages"
	chatCollection     = "chat"
	timestampWidth     = 19
)

// BadgerConversationStore keeps every conversation as a key range of BadgerDB.
// Keys mirror a document path: "messages/{conversation}/chat/{timestamp_padded}/{uuid}".
//  1. The conversation id is path-escaped so that no id can be the prefix of another one.
//  2. The 19-digit zero padding makes lexicographical order chronological order.
//  3. The uuid keeps two messages apart if they ever share a nanosecond.
type BadgerConversationStore struct {
	db    *badger.DB
	log   *slog.Logger
	clock *stamper
}

func NewBadgerConversationStore(db *badger.DB, log *slog.Logger) *BadgerConversationStore {
	return &BadgerConversationStore{db: db, log: log, clock: newStamper()}
}

func conversationPrefix(id domain.ConversationID) string {
	return fmt.Sprintf("%s/%s/%s/", messagesCollection, url.PathEscape(string(id)), chatCollection)
}

func messageKey(id domain.ConversationID, at time.Time, messageID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%0*d/%s", conversationPrefix(id), timestampWidth, at.UnixNano(), messageID))
}

// Append finalizes the draft with an id and a timestamp, then persists it.
func (b *BadgerConversationStore) Append(_ context.Context, conversationID domain.ConversationID, draft domain.Message) (domain.Message, error) {
	message := draft
	message.ID = uuid.New()
	message.ConversationID = conversationID
	if message.Status == "" {
		message.Status = domain.StatusSent
	}

	_, err := b.clock.do(conversationID,
		func() (time.Time, error) { return b.latest(conversationID) },
		func(at time.Time) error {
			message.Timestamp = at
			bytes, err := encodeMessage(message)
			if err != nil {
				return err
			}
			return b.db.Update(func(txn *badger.Txn) error {
				return txn.Set(messageKey(conversationID, at, message.ID), bytes)
			})
		})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: append to %s: %v", errors.ErrStoreUnavailable, conversationID, err)
	}
	return message, nil
}

// ListOrdered returns the whole conversation using a prefix scan.
// Thanks to the padded timestamp in the key, messages come out in append order.
func (b *BadgerConversationStore) ListOrdered(_ context.Context, conversationID domain.ConversationID) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(conversationPrefix(conversationID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				message, err := decodeMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", errors.ErrStoreUnavailable, conversationID, err)
	}
	return messages, nil
}

// Conversations lists every conversation having at least one message.
// Keys are only visited, values are never fetched.
func (b *BadgerConversationStore) Conversations() ([]domain.ConversationID, error) {
	var ids []domain.ConversationID
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagesCollection + "/")
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		var last string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := string(it.Item().Key()[len(prefix):])
			escaped, _, found := strings.Cut(rest, "/")
			if !found || escaped == last {
				continue
			}
			last = escaped
			id, err := url.PathUnescape(escaped)
			if err != nil {
				return err
			}
			ids = append(ids, domain.ConversationID(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list conversations: %v", errors.ErrStoreUnavailable, err)
	}
	return ids, nil
}

// latest seeks the newest key of a conversation, iterating backward from its upper bound.
func (b *BadgerConversationStore) latest(conversationID domain.ConversationID) (time.Time, error) {
	var last time.Time
	err := b.db.View(func(txn *badger.Txn) error {
		prefixStr := conversationPrefix(conversationID)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		// '~' sorts after every digit, so the seek lands on the newest message
		it.Seek([]byte(prefixStr + "~"))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		at, err := timestampFromKey(it.Item().Key(), len(prefix))
		if err != nil {
			return err
		}
		last = at
		return nil
	})
	return last, err
}

func timestampFromKey(key []byte, prefixLen int) (time.Time, error) {
	if len(key) < prefixLen+timestampWidth {
		return time.Time{}, fmt.Errorf("malformed message key %q", key)
	}
	nanos, err := strconv.ParseInt(string(key[prefixLen:prefixLen+timestampWidth]), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed message key %q: %w", key, err)
	}
	return time.Unix(0, nanos).UTC(), nil
}

func (b *BadgerConversationStore) Close() error {
	b.log.Info("Closing BadgerDB...")
	return b.db.Close()
}
