package repositories

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var _ contract.IConversationStore = (*SQLiteConversationStore)(nil)

// SQLiteConversationStore keeps conversations in a single SQLite table.
// Rows of a conversation are read back by timestamp, then by insertion sequence.
type SQLiteConversationStore struct {
	db    *sql.DB
	log   *slog.Logger
	clock *stamper
}

// NewSQLiteConversationStore opens the database at path, creating parent
// directories and the schema when needed.
func NewSQLiteConversationStore(path string, log *slog.Logger) (*SQLiteConversationStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps pragmas effective and writes serialized
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteConversationStore{db: db, log: log, clock: newStamper()}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	log.Info("SQLite conversation store initialized", "path", path)
	return s, nil
}

func (s *SQLiteConversationStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			recipient TEXT NOT NULL,
			content TEXT NOT NULL,
			tag TEXT,
			created_at INTEGER NOT NULL,
			status TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteConversationStore) Append(ctx context.Context, conversationID domain.ConversationID, draft domain.Message) (domain.Message, error) {
	message := draft
	message.ID = uuid.New()
	message.ConversationID = conversationID
	if message.Status == "" {
		message.Status = domain.StatusSent
	}

	_, err := s.clock.do(conversationID,
		func() (time.Time, error) { return s.latest(ctx, conversationID) },
		func(at time.Time) error {
			message.Timestamp = at
			var tag sql.NullString
			if message.Tag != nil {
				tag = sql.NullString{String: *message.Tag, Valid: true}
			}
			_, err := s.db.ExecContext(ctx, `
				INSERT INTO messages (id, conversation_id, sender, recipient, content, tag, created_at, status)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				message.ID.String(), string(conversationID), string(message.From), string(message.To),
				message.Content, tag, at.UnixNano(), string(message.Status))
			return err
		})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: append to %s: %v", errors.ErrStoreUnavailable, conversationID, err)
	}
	return message, nil
}

func (s *SQLiteConversationStore) ListOrdered(ctx context.Context, conversationID domain.ConversationID) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, recipient, content, tag, created_at, status
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, seq ASC`, string(conversationID))
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", errors.ErrStoreUnavailable, conversationID, err)
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var (
			id, sender, recipient, content, status string
			tag                                    sql.NullString
			createdAt                              int64
		)
		if err := rows.Scan(&id, &sender, &recipient, &content, &tag, &createdAt, &status); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", errors.ErrStoreUnavailable, conversationID, err)
		}
		parsedID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid id %q: %v", errors.ErrStoreUnavailable, id, err)
		}
		message := domain.Message{
			ID:             parsedID,
			ConversationID: conversationID,
			From:           domain.Identity(sender),
			To:             domain.Identity(recipient),
			Content:        content,
			Timestamp:      time.Unix(0, createdAt).UTC(),
			Status:         domain.Status(status),
		}
		if tag.Valid {
			t := tag.String
			message.Tag = &t
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", errors.ErrStoreUnavailable, conversationID, err)
	}
	return messages, nil
}

func (s *SQLiteConversationStore) latest(ctx context.Context, conversationID domain.ConversationID) (time.Time, error) {
	var nanos sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM messages WHERE conversation_id = ?`,
		string(conversationID)).Scan(&nanos)
	if err != nil || !nanos.Valid {
		return time.Time{}, err
	}
	return time.Unix(0, nanos.Int64).UTC(), nil
}

// Conversations lists every conversation having at least one message.
func (s *SQLiteConversationStore) Conversations() ([]domain.ConversationID, error) {
	rows, err := s.db.Query(`SELECT DISTINCT conversation_id FROM messages ORDER BY conversation_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list conversations: %v", errors.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var ids []domain.ConversationID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: list conversations: %v", errors.ErrStoreUnavailable, err)
		}
		ids = append(ids, domain.ConversationID(id))
	}
	return ids, rows.Err()
}

func (s *SQLiteConversationStore) Close() error {
	s.log.Info("Closing SQLite...")
	return s.db.Close()
}
