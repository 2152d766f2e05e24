package repositories

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

var _ contract.IConversationStore = (*MemoryConversationStore)(nil)

// MemoryConversationStore is a volatile store, history is lost with the process.
type MemoryConversationStore struct {
	mu            sync.RWMutex
	clock         *stamper
	conversations map[domain.ConversationID][]domain.Message
}

func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{
		clock:         newStamper(),
		conversations: make(map[domain.ConversationID][]domain.Message),
	}
}

func (m *MemoryConversationStore) Append(_ context.Context, conversationID domain.ConversationID, draft domain.Message) (domain.Message, error) {
	message := draft
	message.ID = uuid.New()
	message.ConversationID = conversationID
	if message.Status == "" {
		message.Status = domain.StatusSent
	}
	_, err := m.clock.do(conversationID,
		func() (time.Time, error) { return m.latest(conversationID), nil },
		func(at time.Time) error {
			message.Timestamp = at
			m.mu.Lock()
			m.conversations[conversationID] = append(m.conversations[conversationID], message)
			m.mu.Unlock()
			return nil
		})
	return message, err
}

func (m *MemoryConversationStore) latest(conversationID domain.ConversationID) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	messages := m.conversations[conversationID]
	if len(messages) == 0 {
		return time.Time{}
	}
	return messages[len(messages)-1].Timestamp
}

func (m *MemoryConversationStore) ListOrdered(_ context.Context, conversationID domain.ConversationID) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	messages := make([]domain.Message, len(m.conversations[conversationID]))
	copy(messages, m.conversations[conversationID])
	return messages, nil
}

func (m *MemoryConversationStore) Conversations() ([]domain.ConversationID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Keys(m.conversations), nil
}

func (m *MemoryConversationStore) Close() error { return nil }
