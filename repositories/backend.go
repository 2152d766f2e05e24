package repositories

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

type Backend string

const (
	BackendBadger Backend = "badger"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

type Options struct {
	Backend        Backend
	BadgerFilepath string
	SQLiteFilepath string
	Debug          bool
}

// Open builds the conversation store of the configured backend.
// The returned store owns its database and must be closed.
func Open(options Options, log *slog.Logger) (contract.IConversationStore, error) {
	switch options.Backend {
	case BackendBadger:
		db, err := badger.Open(BadgerOptions(options.BadgerFilepath, options.Debug))
		if err != nil {
			return nil, fmt.Errorf("database opening failed: %w", err)
		}
		return NewBadgerConversationStore(db, log), nil
	case BackendSQLite:
		return NewSQLiteConversationStore(options.SQLiteFilepath, log)
	case BackendMemory:
		log.Warn("Conversation history is kept in memory only")
		return NewMemoryConversationStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownBackend, options.Backend)
	}
}

func BadgerOptions(path string, debug bool) badger.Options {
	options := badger.DefaultOptions(path)
	if debug {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}
