// Package domain contains core concepts of the chat relay.
// This file defines Message and the rules of its creation.
// Messages are immutable once a conversation store has appended them.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const StatusSent Status = "sent"

// Message is a private message between two identities.
// ID and Timestamp are zero until the store finalizes the draft.
type Message struct {
	ID             uuid.UUID
	ConversationID ConversationID
	From           Identity
	To             Identity
	Content        string
	Tag            *string
	Timestamp      time.Time
	Status         Status
}

// NewDraft builds the transient message of a send request.
// An empty tag is stored as no tag at all.
func NewDraft(cmd SendCommand) Message {
	var tag *string
	if cmd.Tag != nil && *cmd.Tag != "" {
		t := *cmd.Tag
		tag = &t
	}
	return Message{
		ConversationID: cmd.ConversationID,
		From:           cmd.From,
		To:             cmd.To,
		Content:        cmd.Content,
		Tag:            tag,
		Status:         StatusSent,
	}
}

// IsDraft tells if the message still waits for a store to assign its identity.
func (m Message) IsDraft() bool {
	return m.ID == uuid.Nil
}
