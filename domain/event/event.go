package event

import (
	"chat-relay/domain"

	"github.com/google/uuid"
)

type Name string

const (
	PrivateMessageName Name = "private_message"
	LoadMessagesName   Name = "loadMessages"
	MessageAckName     Name = "message_ack"
)

// DomainEvent is anything pushed to a connection.
type DomainEvent interface {
	EventName() Name
}

// MessageDelivered carries a persisted message to its recipient.
type MessageDelivered struct {
	Message domain.Message
}

func (m MessageDelivered) EventName() Name { return PrivateMessageName }

// HistoryLoaded is the single batch replaying a whole conversation.
// Messages is never nil.
type HistoryLoaded struct {
	ConversationID domain.ConversationID
	Messages       []domain.Message
}

func (h HistoryLoaded) EventName() Name { return LoadMessagesName }

type AckStatus string

const (
	AckSent   AckStatus = "sent"
	AckFailed AckStatus = "failed"
)

// MessageAck tells the sender what happened to its message.
// Only emitted when acknowledgments are enabled.
type MessageAck struct {
	ConversationID domain.ConversationID
	MessageID      uuid.UUID
	Status         AckStatus
}

func (m MessageAck) EventName() Name { return MessageAckName }
